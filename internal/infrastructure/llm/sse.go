package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/ssestream"
)

// lenientDecoder 跳过空事件与无法解析为 JSON 的 data 行
type lenientDecoder struct {
	ssestream.Decoder
	skipped atomic.Int64
}

func (d *lenientDecoder) Next() bool {
	for d.Decoder.Next() {
		data := bytes.TrimSpace(d.Event().Data)
		if bytes.HasPrefix(data, []byte("[DONE]")) || (len(data) > 0 && json.Valid(data)) {
			return true
		}
		if len(data) > 0 {
			d.skipped.Add(1)
		}
	}
	return false
}

// newChunkStream 与 Chat.Completions.NewStreaming 发出相同的请求，只是换用 lenientDecoder 解码。
// 返回的函数报告被跳过的坏块数量。
func newChunkStream(ctx context.Context, cli *openai.Client, params openai.ChatCompletionNewParams,
	opts []option.RequestOption) (*ssestream.Stream[openai.ChatCompletionChunk], func() int64) {
	var raw *http.Response
	opts = append([]option.RequestOption{option.WithJSONSet("stream", true)}, opts...)
	err := cli.Post(ctx, "chat/completions", params, &raw, opts...)

	var dec ssestream.Decoder
	ld := &lenientDecoder{}
	if d := ssestream.NewDecoder(raw); d != nil {
		ld.Decoder = d
		dec = ld
	}
	return ssestream.NewStream[openai.ChatCompletionChunk](dec, err), ld.skipped.Load
}
