package llm

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter 估算文本的 token 数。
// 未指定编码模型或编码表加载失败时，退化为按字符数估算。
type TokenCounter struct {
	model string
	once  sync.Once
	tkm   *tiktoken.Tiktoken
}

// NewTokenCounter 创建 token 计数器，model 决定使用的编码表
func NewTokenCounter(model string) *TokenCounter {
	return &TokenCounter{model: model}
}

// Count 返回文本的 token 数
func (c *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	c.once.Do(func() {
		if c.model == "" {
			return
		}
		tkm, err := tiktoken.EncodingForModel(c.model)
		if err == nil {
			c.tkm = tkm
		}
	})
	if c.tkm == nil {
		// 中文约 1 字 1 token，英文约 4 字符 1 token，取折中
		return (utf8.RuneCountInString(text) + 1) * 2 / 3
	}
	return len(c.tkm.Encode(text, nil, nil))
}
