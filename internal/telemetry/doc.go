// Package telemetry 封装 OpenTelemetry SDK 初始化，为工作流执行器提供
// TracerProvider 与 MeterProvider。遥测禁用时返回 noop 实现，不连接任何外部服务。
package telemetry
