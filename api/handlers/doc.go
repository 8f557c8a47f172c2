// Copyright (c) AgentOS Studio Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 AgentOS Studio HTTP API 的请求处理器实现。

# 概述

handlers 包实现了工作流编辑、执行、执行记录查询、模板与定义导入导出、
健康检查以及执行事件推送的请求处理逻辑。所有 Handler 均遵循标准
net/http 接口，路由使用 Go 1.22 的方法 + 路径模式注册。

# 核心类型

  - WorkflowHandler  — 工作流/节点/连线 CRUD、执行、建议、模板、定义
  - HealthHandler    — 服务健康检查（/health, /healthz, /ready, /version）
  - EventHub         — workflow.Observer 实现，经 WebSocket 广播执行事件
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo        — 结构化错误信息，含 code、message、details、retryable
  - ResponseWriter   — 包装 http.ResponseWriter 以捕获状态码与字节数
  - HealthCheck      — 可插拔健康检查接口（PingCheck、记录存储）

# 主要能力

  - 统一响应格式：WriteSuccess / WriteCreated / WriteError / WriteJSON
  - 领域错误映射：ValidationError → 400，StructuralError → 422，未找到 → 404
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式）与 validator/v10 标签校验
  - 执行失败时在 error.details 中返回部分执行记录
  - 就绪检查通过 errgroup 并发执行
  - 事件推送：慢订阅者丢弃事件，不阻塞执行器
*/
package handlers
