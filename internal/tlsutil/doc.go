// Package tlsutil 提供 API 服务器使用的 TLS 配置（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
