// Copyright (c) AgentOS Studio Authors.
// Licensed under the MIT License.

/*
Package types 提供 AgentOS Studio 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 workflow、persistence、
api 等上层模块提供统一的错误码与 Context 传播约定。

# 核心类型

  - Error / ErrorCode — 结构化错误体系，含 HTTP 状态码、Retryable、Details
  - contextKey        — Context 键（trace / request / tenant / user / execution）

# 主要能力

  - Context 传播：WithTraceID / WithRequestID / WithTenantID / WithUserID / WithExecutionID
  - 错误工具链：AsError / GetErrorCode / IsErrorCode / IsRetryable
*/
package types
