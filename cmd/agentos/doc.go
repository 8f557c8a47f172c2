// Copyright (c) AgentOS Studio Authors.
// Licensed under the MIT License.

/*
Package main 提供 AgentOS Studio 服务端程序入口。

# 概述

cmd/agentos 是 AgentOS Studio 的可执行入口，基于 urfave/cli 提供
HTTP API 服务、本地执行与校验工作流定义、健康检查和版本查询等子命令。
程序支持 YAML 配置文件加载、结构化日志（zap）、Prometheus 指标采集、
OpenTelemetry 追踪以及 WebSocket 执行事件推送。

# 核心类型

  - Server        — 主服务器，组装存储、执行器与 handlers，管理 API、Metrics 双端口
  - Middleware    — HTTP 中间件函数签名 func(http.Handler) http.Handler
  - statusWriter  — 包装 http.ResponseWriter 捕获状态码，保留 Hijack/Flush

# 主要能力

  - 子命令：serve、run（执行定义文件并输出执行记录）、validate、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、Metrics、
    RequestLogger、CORS、MaxBody、APIKeyAuth、JWTAuth、RateLimiter/TenantRateLimiter
  - 执行记录存储：memory / redis / sql / mongo，SQL 存储定期上报连接池指标
  - 优雅关闭：信号取消 ctx → 关闭 HTTP 与 Metrics → 断开事件订阅 → 关闭存储 → 刷新遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
