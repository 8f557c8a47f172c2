package tokenizer

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// Counter 基于 tiktoken 的 Token 计数器，实现 workflow.TokenCounter。
// 编码不可用时（未知编码名、BPE 数据无法加载）退回字符估算。
type Counter struct {
	encoding string
	logger   *zap.Logger

	once    sync.Once
	enc     *tiktoken.Tiktoken
	initErr error
}

// New 创建计数器，encoding 为空时只使用估算
func New(encoding string, logger *zap.Logger) *Counter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Counter{
		encoding: encoding,
		logger:   logger.With(zap.String("component", "tokenizer")),
	}
}

// init 延迟加载编码（首次使用时可能需要下载数据）
func (c *Counter) init() error {
	c.once.Do(func() {
		if c.encoding == "" {
			c.initErr = fmt.Errorf("no encoding configured")
			return
		}
		enc, err := tiktoken.GetEncoding(c.encoding)
		if err != nil {
			c.initErr = fmt.Errorf("init tiktoken encoding %s: %w", c.encoding, err)
			c.logger.Warn("falling back to token estimation", zap.Error(c.initErr))
			return
		}
		c.enc = enc
	})
	return c.initErr
}

// CountTokens 返回文本的 Token 数
func (c *Counter) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if err := c.init(); err != nil {
		return Estimate(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

// Name 返回当前生效的计数方式
func (c *Counter) Name() string {
	if err := c.init(); err != nil {
		return "estimator"
	}
	return "tiktoken[" + c.encoding + "]"
}

// Estimate 按字符估算 Token 数：CJK 约 1.5 字符/Token，其余约 4 字符/Token
func Estimate(text string) int {
	if text == "" {
		return 0
	}

	total := utf8.RuneCountInString(text)
	cjk := 0
	for _, r := range text {
		if isCJK(r) {
			cjk++
		}
	}

	estimated := int(float64(cjk)/1.5 + float64(total-cjk)/4.0)
	if estimated == 0 {
		estimated = 1
	}
	return estimated
}

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) || // CJK Unified Ideographs
		(r >= 0x3400 && r <= 0x4DBF) || // CJK Extension A
		(r >= 0x20000 && r <= 0x2A6DF) || // CJK Extension B
		(r >= 0xF900 && r <= 0xFAFF) || // CJK Compatibility Ideographs
		(r >= 0x3000 && r <= 0x303F) || // CJK Symbols and Punctuation
		(r >= 0xFF00 && r <= 0xFFEF) // Halfwidth and Fullwidth Forms
}
