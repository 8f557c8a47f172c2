// Package config 提供 AgentOS Studio 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（AGENTOS_*）的顺序叠加，
// 覆盖服务器、执行器、执行记录存储、认证、日志与遥测等模块。
package config
