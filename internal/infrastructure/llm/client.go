// Package llm 封装 OpenAI 兼容上游的对话与模型列表接口
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"z-novel-studio/internal/config"
	"z-novel-studio/internal/domain/service"
	"z-novel-studio/pkg/logger"
	"z-novel-studio/pkg/metrics"
	"z-novel-studio/pkg/tracer"
)

// Credentials 上游地址与密钥
type Credentials struct {
	BaseURL string
	APIKey  string
}

// Sampling 采样参数
type Sampling struct {
	Temperature float64
	TopP        float64
	// TopK 仅在大于 0 时随请求发送
	TopK int
}

// SamplingFromOptions 由温度与多样性换算采样参数，top_p = (diversity - 0.1) / 2
func SamplingFromOptions(temperature, diversity float64, topK int) Sampling {
	return Sampling{
		Temperature: temperature,
		TopP:        (diversity - 0.1) / 2,
		TopK:        topK,
	}
}

// Request 一次对话补全请求
type Request struct {
	Model    string
	Messages []*schema.Message
	Sampling Sampling
}

// Response 非流式补全结果
type Response struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// Client 上游调用客户端，按 (地址, 密钥) 复用底层连接并限速
type Client struct {
	cfg      config.UpstreamConfig
	recorder service.LLMUsageRecorder
	tokens   *TokenCounter

	mu       sync.RWMutex
	clients  map[string]*openai.Client
	limiters map[string]*rate.Limiter
}

// NewClient 创建上游客户端
func NewClient(cfg *config.Config, recorder service.LLMUsageRecorder) *Client {
	return &Client{
		cfg:      cfg.Upstream,
		recorder: recorder,
		tokens:   NewTokenCounter(cfg.Upstream.TokenEncodingModel),
		clients:  make(map[string]*openai.Client),
		limiters: make(map[string]*rate.Limiter),
	}
}

// ResolveCredentials 合并请求凭据与配置兜底，缺失时返回 ok=false
func (c *Client) ResolveCredentials(baseURL, apiKey string) (Credentials, bool) {
	creds := Credentials{
		BaseURL: strings.TrimSpace(baseURL),
		APIKey:  strings.TrimSpace(apiKey),
	}
	if creds.BaseURL == "" {
		creds.BaseURL = c.cfg.BaseURL
	}
	if creds.APIKey == "" {
		creds.APIKey = c.cfg.APIKey
	}
	return creds, creds.BaseURL != "" && creds.APIKey != ""
}

// APIBase 将用户填写的地址归一为 <origin>/v1/，忽略其中的路径部分
func APIBase(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid api base url %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid api base url %q: missing scheme or host", raw)
	}
	return u.Scheme + "://" + u.Host + "/v1/", nil
}

func (c *Client) endpoint(creds Credentials) (*openai.Client, *rate.Limiter, error) {
	base, err := APIBase(creds.BaseURL)
	if err != nil {
		return nil, nil, err
	}
	key := base + "|" + creds.APIKey

	c.mu.RLock()
	cli, ok := c.clients[key]
	lim := c.limiters[base]
	c.mu.RUnlock()
	if ok {
		return cli, lim, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cli, ok = c.clients[key]; ok {
		return cli, c.limiters[base], nil
	}

	opts := []option.RequestOption{
		option.WithBaseURL(base),
		option.WithAPIKey(creds.APIKey),
		option.WithMaxRetries(0),
	}
	if c.cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(c.cfg.Timeout))
	}
	nc := openai.NewClient(opts...)
	cli = &nc
	c.clients[key] = cli

	lim, ok = c.limiters[base]
	if !ok {
		limit := rate.Inf
		if c.cfg.RequestsPerSecond > 0 {
			limit = rate.Limit(c.cfg.RequestsPerSecond)
		}
		lim = rate.NewLimiter(limit, max(c.cfg.Burst, 1))
		c.limiters[base] = lim
	}
	return cli, lim, nil
}

func toParams(req Request) (openai.ChatCompletionNewParams, []option.RequestOption) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case schema.System:
			msgs = append(msgs, openai.ChatCompletionMessageParamUnion{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Role: "system",
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: param.Opt[string]{Value: m.Content},
					},
				},
			})
		case schema.Assistant:
			msgs = append(msgs, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role: "assistant",
					Content: openai.ChatCompletionAssistantMessageParamContentUnion{
						OfString: param.Opt[string]{Value: m.Content},
					},
				},
			})
		default:
			msgs = append(msgs, openai.ChatCompletionMessageParamUnion{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Role: "user",
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: param.Opt[string]{Value: m.Content},
					},
				},
			})
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       req.Model,
		Messages:    msgs,
		Temperature: openai.Float(req.Sampling.Temperature),
		TopP:        openai.Float(req.Sampling.TopP),
	}
	var opts []option.RequestOption
	if req.Sampling.TopK > 0 {
		opts = append(opts, option.WithJSONSet("top_k", req.Sampling.TopK))
	}
	return params, opts
}

// Complete 发送非流式补全请求
func (c *Client) Complete(ctx context.Context, creds Credentials, req Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "llm.Complete")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", req.Model), attribute.String("llm.action", service.ActionFromContext(ctx)))

	cli, lim, err := c.endpoint(creds)
	if err != nil {
		return nil, err
	}
	if err := lim.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	params, opts := toParams(req)
	resp, err := cli.Chat.Completions.New(ctx, params, opts...)
	elapsed := time.Since(start)
	metrics.LLMCallDuration.WithLabelValues(req.Model, "blocking").Observe(elapsed.Seconds())
	if err != nil {
		tracer.RecordError(span, err)
		c.finish(ctx, req, 0, 0, elapsed, err)
		return nil, Classify(err, req.Model)
	}

	out := &Response{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
	}
	if len(resp.Choices) > 0 {
		out.Content = resp.Choices[0].Message.Content
	}
	if out.PromptTokens == 0 && out.CompletionTokens == 0 {
		out.PromptTokens, out.CompletionTokens = c.estimate(req.Messages, out.Content)
	}
	if out.Content == "" {
		c.finish(ctx, req, out.PromptTokens, 0, elapsed, ErrEmptyResponse)
		return nil, Classify(ErrEmptyResponse, req.Model)
	}

	c.finish(ctx, req, out.PromptTokens, out.CompletionTokens, elapsed, nil)
	return out, nil
}

// Stream 发送流式补全请求，返回增量文本的读取端。
// 建立连接失败时直接返回错误；读取过程中的错误通过 Recv 返回。
// 调用方关闭读取端后，后台协程会停止读取上游。
func (c *Client) Stream(ctx context.Context, creds Credentials, req Request, buffer int) (*schema.StreamReader[*schema.Message], error) {
	cli, lim, err := c.endpoint(creds)
	if err != nil {
		return nil, err
	}
	if err := lim.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "llm.Stream")
	span.SetAttributes(attribute.String("llm.model", req.Model), attribute.String("llm.action", service.ActionFromContext(ctx)))

	start := time.Now()
	params, opts := toParams(req)
	stream, skipped := newChunkStream(ctx, cli, params, opts)
	if err := stream.Err(); err != nil {
		_ = stream.Close()
		tracer.RecordError(span, err)
		span.End()
		c.finish(ctx, req, 0, 0, time.Since(start), err)
		return nil, Classify(err, req.Model)
	}

	if buffer <= 0 {
		buffer = 16
	}
	reader, writer := schema.Pipe[*schema.Message](buffer)

	go func() {
		defer span.End()
		defer writer.Close()
		defer stream.Close()

		var sb strings.Builder
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			sb.WriteString(delta)
			if closed := writer.Send(schema.AssistantMessage(delta, nil), nil); closed {
				c.finishStream(ctx, req, sb.String(), time.Since(start), context.Canceled)
				return
			}
		}

		if n := skipped(); n > 0 {
			logger.Warn(ctx, "ignored malformed stream chunks", "model", req.Model, "count", n)
		}
		err := stream.Err()
		if err != nil && !errors.Is(err, io.EOF) {
			tracer.RecordError(span, err)
			writer.Send(nil, Classify(err, req.Model))
		} else {
			err = nil
		}
		c.finishStream(ctx, req, sb.String(), time.Since(start), err)
	}()

	return reader, nil
}

// ListModels 列出上游可用模型 ID，按字典序排序
func (c *Client) ListModels(ctx context.Context, creds Credentials) ([]string, error) {
	ctx, span := tracer.Start(ctx, "llm.ListModels")
	defer span.End()

	cli, lim, err := c.endpoint(creds)
	if err != nil {
		return nil, err
	}
	if err := lim.Wait(ctx); err != nil {
		return nil, err
	}

	page, err := cli.Models.List(ctx)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, Classify(err, "")
	}
	ids := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		ids = append(ids, m.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

func (c *Client) estimate(messages []*schema.Message, completion string) (int, int) {
	if c.recorder == nil {
		return 0, 0
	}
	prompt := 0
	for _, m := range messages {
		prompt += c.tokens.Count(m.Content)
	}
	return prompt, c.tokens.Count(completion)
}

func (c *Client) finishStream(ctx context.Context, req Request, text string, elapsed time.Duration, err error) {
	metrics.LLMCallDuration.WithLabelValues(req.Model, "stream").Observe(elapsed.Seconds())
	prompt, completion := c.estimate(req.Messages, text)
	c.finish(ctx, req, prompt, completion, elapsed, err)
}

// finish 记录指标与用量，用量上报失败只记日志
func (c *Client) finish(ctx context.Context, req Request, promptTokens, completionTokens int, elapsed time.Duration, err error) {
	status := "success"
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		status = "aborted"
	default:
		status = "error"
	}
	metrics.LLMCallTotal.WithLabelValues(req.Model, status).Inc()
	if promptTokens > 0 {
		metrics.LLMTokensUsed.WithLabelValues(req.Model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		metrics.LLMTokensUsed.WithLabelValues(req.Model, "completion").Add(float64(completionTokens))
	}

	action := service.ActionFromContext(ctx)
	if err != nil && status == "error" {
		logger.Warn(ctx, "upstream call failed", "action", action, "model", req.Model, "error", err.Error())
	}
	if c.recorder == nil {
		return
	}
	in := service.LLMUsageInput{
		SessionID:        service.SessionFromContext(ctx),
		Action:           action,
		Model:            req.Model,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		DurationMs:       int(elapsed.Milliseconds()),
		Status:           status,
	}
	// 使用独立 context，避免请求结束或中止后丢失用量
	if rerr := c.recorder.Record(context.WithoutCancel(ctx), in); rerr != nil {
		logger.Warn(ctx, "failed to record llm usage", "action", action, "model", req.Model, "error", rerr.Error())
	}
}
