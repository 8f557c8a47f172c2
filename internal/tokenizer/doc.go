// Package tokenizer 为 Agent 节点提供 Token 计数：优先使用 tiktoken 编码，
// 编码不可用时退回区分 CJK 与 ASCII 的字符估算。
package tokenizer
