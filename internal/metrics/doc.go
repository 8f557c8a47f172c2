// Copyright (c) AgentOS Studio Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的指标采集，覆盖 HTTP 请求、工作流运行、
节点执行、执行记录存储与数据库连接池。

# 概述

Collector 以 namespace 隔离指标，可注册到默认或自定义 registry。它实现
workflow.Observer，挂到执行器后即可把运行与节点事件折算为计数器与直方图。

# 核心接口与类型

  - Collector：指标收集器，按业务域分组持有 Prometheus 向量指标。
  - InstrumentStore：包装 workflow.RecordStore，记录每次操作耗时与失败次数。

# 主要能力

  - HTTP 指标：请求总数、耗时与响应大小，状态码归类为 2xx/3xx/4xx/5xx。
  - 工作流指标：运行总数与耗时（按状态）、在途运行数、节点执行数、
    节点耗时与 Token 用量（按节点类型）。
  - 存储指标：按 backend/operation 的耗时与错误计数，未找到不计为错误。
*/
package metrics
