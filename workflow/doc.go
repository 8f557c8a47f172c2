// Copyright (c) AgentOS Studio Authors.
// Licensed under the MIT License.

/*
Package workflow 提供多 Agent 工作流的图模型与执行引擎。

# 概述

workflow 包描述由 Agent、Tool、Decision、Handoff 等类型化节点组成的
有向图，并提供顺序深度优先执行器。每次执行产生一份 ExecutionRecord，
记录执行路径、节点结果与聚合指标。

# 核心接口与类型

  - Graph              — 节点/边集合，负责连接校验（Tool → Tool 永远非法）
  - Node / NodeConfig  — 十种节点类型，每种类型携带自己的配置结构体
  - Store              — 显式的工作流存储对象（替代进程级单例）
  - Executor           — 从入口节点出发的深度优先执行器
  - Strategy           — 按节点类型注入的执行策略（StrategyTable）
  - ExecutionRecord    — 单次运行台账（状态、路径、结果、指标）
  - WorkflowContext    — 单次运行内共享的可变上下文
  - Orchestrator       — Store + Executor + RecordStore 的组合入口
  - Definition         — JSON / YAML 导入导出

# 主要能力

  - 入口节点：入度为 0 的节点，按插入顺序执行
  - 错误策略：FailFast（默认，整次运行中止）/ SkipBranch（仅中止当前分支）
  - Tool 节点重试：遵循 ErrorHandling.RetryCount 与 FallbackAction
  - Decision 分支：WithDecisionBranching 开启后按边条件 true/false 路由
  - 观察者：Observer 接收运行/节点事件，用于指标、追踪与事件推送
  - 建议助手：SuggestNextNodes / AssistConnection 仅提供建议，不修改图
*/
package workflow
