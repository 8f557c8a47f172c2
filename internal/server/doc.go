// Copyright (c) AgentOS Studio Authors.
// Licensed under the MIT License.

/*
包 server 提供 HTTP/HTTPS 服务器生命周期管理，API 服务与指标服务
都通过它启动和优雅关闭。

# 概述

Manager 封装 net/http.Server，统一管理监听、服务、关闭与错误传播。
Run 以 context 驱动：ctx 结束或服务异常退出后在配置超时内完成排空。
同时配置证书与私钥时以 HTTPS 启动，TLS 参数来自 tlsutil。

# 核心接口与类型

  - Manager：服务器管理器，提供 Start/Run/Shutdown/Errors/Addr。
  - Config：监听地址、读写与空闲超时、最大请求头、关闭超时与 TLS 文件。

# 主要能力

  - 配置派生：APIConfig/MetricsConfig 从 config.ServerConfig 生成。
  - 幂等关闭：重复 Shutdown 无副作用，关闭后不可再次启动。
*/
package server
