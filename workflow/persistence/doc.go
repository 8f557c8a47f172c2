// Copyright (c) AgentOS Studio Authors.
// Licensed under the MIT License.

/*
包 persistence 提供工作流执行记录（ExecutionRecord）的持久化后端。

# 概述

所有后端都实现 workflow.RecordStore，保存的是记录快照，读取时通过
Restore 恢复终态记录的冻结状态。NewRecordStore 根据 config.StoreConfig
的 type 字段选择后端。

# 核心接口与类型

  - RedisRecordStore：JSON 文档 + 按工作流与状态划分的有序集合索引，支持 TTL 过期。
  - SQLRecordStore：基于 GORM 的 workflow_executions 表，支持 PostgreSQL、MySQL、SQLite。
  - MongoRecordStore：以执行 ID 为 _id 的集合，带 workflow_id/status 复合索引。
  - StoreType：memory、redis、sql、mongo。

# 主要能力

  - 列表查询统一按开始时间倒序返回。
  - 删除不存在的记录返回 workflow.ErrExecutionNotFound。
*/
package persistence
