// Copyright (c) AgentOS Studio Authors.
// Licensed under the MIT License.

/*
包 database 提供基于 GORM 的数据库连接与连接池管理，执行记录的
SQL 存储通过它访问 PostgreSQL、MySQL 或 SQLite。

# 概述

Open 根据 config.DatabaseConfig 选择方言（postgres、mysql 或纯 Go 的
glebarez/sqlite），并交由 PoolManager 统一管理连接生命周期。后台健康
检查定时探活，异常时通过 zap 日志输出诊断信息。

# 核心接口与类型

  - PoolManager：连接池管理器，提供 DB()、Ping()、Stats()、Close()。
  - PoolConfig：连接池配置，可通过 PoolConfigFrom 从数据库配置派生。
  - TransactionFunc：事务回调函数类型。

# 主要能力

  - 方言选择：Dialector 按驱动名返回 GORM Dialector。
  - 事务管理：WithTransaction 单次执行，WithTransactionRetry 对死锁、
    序列化失败等瞬时错误指数退避重试。
*/
package database
