package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"

	"z-novel-studio/internal/config"
	"z-novel-studio/internal/domain/entity"
	"z-novel-studio/internal/domain/service"
	apperrors "z-novel-studio/pkg/errors"
)

type recordingUsage struct {
	mu      sync.Mutex
	entries []service.LLMUsageInput
}

func (r *recordingUsage) Record(_ context.Context, in service.LLMUsageInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, in)
	return nil
}

func (r *recordingUsage) last() service.LLMUsageInput {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[len(r.entries)-1]
}

func newTestClient(recorder service.LLMUsageRecorder) *Client {
	cfg := &config.Config{}
	cfg.Upstream.RequestsPerSecond = 100
	cfg.Upstream.Burst = 10
	return NewClient(cfg, recorder)
}

func completionBody(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":      "cmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "test-model",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
		"usage": map[string]any{"prompt_tokens": 11, "completion_tokens": 7, "total_tokens": 18},
	})
	return string(b)
}

func TestAPIBase(t *testing.T) {
	cases := map[string]string{
		"https://api.example.com":                 "https://api.example.com/v1/",
		"https://api.example.com/v1":              "https://api.example.com/v1/",
		"https://api.example.com/custom/path?x=1": "https://api.example.com/v1/",
		"http://localhost:8080/":                  "http://localhost:8080/v1/",
	}
	for in, want := range cases {
		got, err := APIBase(in)
		if err != nil {
			t.Fatalf("APIBase(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("APIBase(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := APIBase("not a url"); err == nil {
		t.Error("expected error for url without scheme")
	}
}

func TestSamplingFromOptions(t *testing.T) {
	s := SamplingFromOptions(0.8, 2.0, 0)
	if math.Abs(s.TopP-0.95) > 1e-9 {
		t.Errorf("TopP = %v, want 0.95", s.TopP)
	}
	if s.Temperature != 0.8 {
		t.Errorf("Temperature = %v", s.Temperature)
	}
}

func TestClient_Complete(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionBody("你好"))
	}))
	defer srv.Close()

	rec := &recordingUsage{}
	c := newTestClient(rec)
	ctx := service.WithSession(service.WithAction(context.Background(), "generateChapterTitles"), "s-1")

	resp, err := c.Complete(ctx, Credentials{BaseURL: srv.URL + "/ignored/path", APIKey: "sk-test"}, Request{
		Model:    "test-model",
		Messages: []*schema.Message{schema.SystemMessage("sys"), schema.UserMessage("user")},
		Sampling: Sampling{Temperature: 0.7, TopP: 0.5, TopK: 40},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "你好" || resp.PromptTokens != 11 || resp.CompletionTokens != 7 {
		t.Errorf("unexpected response %+v", resp)
	}

	if body["model"] != "test-model" {
		t.Errorf("model = %v", body["model"])
	}
	if body["top_p"] != 0.5 || body["temperature"] != 0.7 {
		t.Errorf("sampling not forwarded: %v", body)
	}
	if body["top_k"] != float64(40) {
		t.Errorf("top_k = %v", body["top_k"])
	}
	msgs, _ := body["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %v", body["messages"])
	}
	if first, _ := msgs[0].(map[string]any); first["role"] != "system" || first["content"] != "sys" {
		t.Errorf("first message = %v", first)
	}

	got := rec.last()
	if got.Action != "generateChapterTitles" || got.SessionID != "s-1" || got.Status != "success" {
		t.Errorf("usage = %+v", got)
	}
	if got.PromptTokens != 11 || got.CompletionTokens != 7 {
		t.Errorf("usage tokens = %+v", got)
	}
}

func TestClient_CompleteOmitsTopKWhenZero(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionBody("ok"))
	}))
	defer srv.Close()

	c := newTestClient(nil)
	_, err := c.Complete(context.Background(), Credentials{BaseURL: srv.URL, APIKey: "k"}, Request{
		Model:    "m",
		Messages: []*schema.Message{schema.UserMessage("hi")},
		Sampling: Sampling{Temperature: 1, TopP: 0.45},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if _, ok := body["top_k"]; ok {
		t.Errorf("top_k should be omitted, body = %v", body)
	}
}

func TestClient_ZeroOptionsSurviveSessionPatch(t *testing.T) {
	var patch entity.StoryOptionsPatch
	if err := json.Unmarshal([]byte(`{"topK":0,"temperature":0}`), &patch); err != nil {
		t.Fatalf("decode patch: %v", err)
	}
	opts := patch.ApplyTo(entity.DefaultStoryOptions())
	if opts.TopK != 0 || opts.Temperature != 0 {
		t.Fatalf("options after patch = %+v", opts)
	}

	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionBody("ok"))
	}))
	defer srv.Close()

	c := newTestClient(nil)
	_, err := c.Complete(context.Background(), Credentials{BaseURL: srv.URL, APIKey: "k"}, Request{
		Model:    "m",
		Messages: []*schema.Message{schema.UserMessage("hi")},
		Sampling: SamplingFromOptions(opts.Temperature, opts.Diversity, opts.TopK),
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if _, ok := body["top_k"]; ok {
		t.Errorf("top_k should be omitted, body = %v", body)
	}
	if temp, ok := body["temperature"]; !ok || temp != float64(0) {
		t.Errorf("temperature = %v (present %v)", temp, ok)
	}
}

func TestClient_CompleteClassifiesErrors(t *testing.T) {
	cases := []struct {
		name     string
		status   int
		body     string
		code     apperrors.ErrorCode
		http     int
		contains string
	}{
		{"unauthorized", 401, `{"error":{"message":"bad key"}}`, apperrors.CodeUpstreamAuth, 401, "API密钥无效"},
		{"rate limited", 429, `{"error":{"message":"slow down"}}`, apperrors.CodeUpstreamRateLimit, 429, "速率限制"},
		{"gateway timeout", 504, `timeout`, apperrors.CodeUpstreamTimeout, 504, "模型 [m] 响应超时"},
		{"cloudflare timeout", 524, `timeout`, apperrors.CodeUpstreamTimeout, 504, "Gateway Timeout"},
		{"bad request", 400, `{"error":{"message":"context too long"}}`, apperrors.CodeUpstreamBadRequest, 400, "请求错误 (Bad Request): context too long"},
		{"bad request plain body", 400, `<html>bad</html>`, apperrors.CodeUpstreamBadRequest, 400, "请求错误 (Bad Request): 上游API报告了一个请求错误。"},
		{"server error", 503, `{"error":{"message":"down"}}`, apperrors.CodeUpstreamError, 502, "状态码: 503"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			rec := &recordingUsage{}
			c := newTestClient(rec)
			_, err := c.Complete(context.Background(), Credentials{BaseURL: srv.URL, APIKey: "k"}, Request{
				Model:    "m",
				Messages: []*schema.Message{schema.UserMessage("hi")},
			})
			if !apperrors.IsAppError(err) {
				t.Fatalf("expected AppError, got %v", err)
			}
			appErr := apperrors.AsAppError(err)
			if appErr.Code != tc.code || appErr.HTTPStatus != tc.http {
				t.Errorf("code=%s status=%d, want %s/%d", appErr.Code, appErr.HTTPStatus, tc.code, tc.http)
			}
			if !strings.Contains(appErr.Message, tc.contains) {
				t.Errorf("message %q missing %q", appErr.Message, tc.contains)
			}
			if rec.last().Status != "error" {
				t.Errorf("usage status = %s", rec.last().Status)
			}
		})
	}
}

func TestClassify_BadRequestBody(t *testing.T) {
	cases := map[string]struct {
		body string
		want string
	}{
		"json body":  {`{"detail":"x"}`, `请求错误 (Bad Request): {"detail":"x"}`},
		"html body":  {"<html>bad</html>", "请求错误 (Bad Request): 上游API报告了一个请求错误。"},
		"empty body": {"", "请求错误 (Bad Request): 上游API报告了一个请求错误。"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := Classify(&UpstreamError{StatusCode: http.StatusBadRequest, Body: tc.body}, "m")
			if got := apperrors.AsAppError(err).Message; got != tc.want {
				t.Errorf("message = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestClassify_LocalDeadline(t *testing.T) {
	err := Classify(fmt.Errorf("post: %w", context.DeadlineExceeded), "m")
	appErr := apperrors.AsAppError(err)
	if appErr.Code != apperrors.CodeOperationTimeout || appErr.HTTPStatus != http.StatusGatewayTimeout {
		t.Fatalf("code=%s status=%d", appErr.Code, appErr.HTTPStatus)
	}
	if strings.Contains(appErr.Message, "Gateway Timeout") || !strings.Contains(appErr.Message, "upstream.timeout") {
		t.Errorf("unexpected message %q", appErr.Message)
	}
}

func TestClient_RequestTimeoutIsLocal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	rec := &recordingUsage{}
	c := newTestClient(rec)
	c.cfg.Timeout = 50 * time.Millisecond
	_, err := c.Complete(context.Background(), Credentials{BaseURL: srv.URL, APIKey: "k"}, Request{
		Model:    "m",
		Messages: []*schema.Message{schema.UserMessage("hi")},
	})
	if code := apperrors.AsAppError(err).Code; code != apperrors.CodeOperationTimeout {
		t.Fatalf("expected operation timeout, got %s (%v)", code, err)
	}
}

func TestClient_CompleteEmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionBody(""))
	}))
	defer srv.Close()

	_, err := newTestClient(nil).Complete(context.Background(), Credentials{BaseURL: srv.URL, APIKey: "k"}, Request{
		Model:    "m",
		Messages: []*schema.Message{schema.UserMessage("hi")},
	})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected empty response error, got %v", err)
	}
}

func TestClient_Stream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(raw), `"stream":true`) {
			t.Errorf("stream flag missing: %s", raw)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, delta := range []string{"[START_THOUGHT_PROCESS]", "构思", "[START_CHAPTER_CONTENT]", "正文"} {
			chunk, _ := json.Marshal(map[string]any{
				"id":      "c",
				"object":  "chat.completion.chunk",
				"created": 1,
				"model":   "m",
				"choices": []map[string]any{{"index": 0, "delta": map[string]any{"content": delta}}},
			})
			_, _ = io.WriteString(w, "data: "+string(chunk)+"\n\n")
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	rec := &recordingUsage{}
	c := newTestClient(rec)
	ctx := service.WithAction(context.Background(), "writeChapter")
	reader, err := c.Stream(ctx, Credentials{BaseURL: srv.URL, APIKey: "k"}, Request{
		Model:    "m",
		Messages: []*schema.Message{schema.UserMessage("写")},
	}, 4)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer reader.Close()

	var sb strings.Builder
	for {
		msg, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		sb.WriteString(msg.Content)
	}
	if got := sb.String(); got != "[START_THOUGHT_PROCESS]构思[START_CHAPTER_CONTENT]正文" {
		t.Errorf("stream text = %q", got)
	}

	got := rec.last()
	if got.Action != "writeChapter" || got.Status != "success" {
		t.Errorf("usage = %+v", got)
	}
	if got.CompletionTokens == 0 {
		t.Errorf("completion tokens should be counted for streams")
	}
}

func TestClient_StreamSkipsMalformedChunks(t *testing.T) {
	chunk := func(delta string) string {
		b, _ := json.Marshal(map[string]any{
			"id":      "c",
			"object":  "chat.completion.chunk",
			"created": 1,
			"model":   "m",
			"choices": []map[string]any{{"index": 0, "delta": map[string]any{"content": delta}}},
		})
		return "data: " + string(b) + "\n\n"
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, chunk("前半"))
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"delta\":\n\n")
		_, _ = io.WriteString(w, ": keep-alive\n\n\n")
		_, _ = io.WriteString(w, chunk("后半"))
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := newTestClient(&recordingUsage{})
	reader, err := c.Stream(context.Background(), Credentials{BaseURL: srv.URL, APIKey: "k"}, Request{
		Model:    "m",
		Messages: []*schema.Message{schema.UserMessage("写")},
	}, 4)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer reader.Close()

	var sb strings.Builder
	for {
		msg, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("a malformed chunk should not end the stream: %v", err)
		}
		sb.WriteString(msg.Content)
	}
	if got := sb.String(); got != "前半后半" {
		t.Errorf("stream text = %q", got)
	}
}

func TestClient_StreamUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"invalid key"}}`)
	}))
	defer srv.Close()

	_, err := newTestClient(nil).Stream(context.Background(), Credentials{BaseURL: srv.URL, APIKey: "k"}, Request{
		Model:    "m",
		Messages: []*schema.Message{schema.UserMessage("写")},
	}, 0)
	if !errors.Is(err, apperrors.New(apperrors.CodeUpstreamAuth, "")) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestClient_ListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"object":"list","data":[
			{"id":"gemini-pro","object":"model","created":1,"owned_by":"x"},
			{"id":"deepseek-chat","object":"model","created":1,"owned_by":"x"},
			{"id":"gemini-flash","object":"model","created":1,"owned_by":"x"}]}`)
	}))
	defer srv.Close()

	ids, err := newTestClient(nil).ListModels(context.Background(), Credentials{BaseURL: srv.URL, APIKey: "k"})
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	want := []string{"deepseek-chat", "gemini-flash", "gemini-pro"}
	if strings.Join(ids, ",") != strings.Join(want, ",") {
		t.Errorf("ids = %v, want %v", ids, want)
	}
}

func TestClient_ResolveCredentials(t *testing.T) {
	cfg := &config.Config{}
	cfg.Upstream.BaseURL = "https://fallback.example.com"
	cfg.Upstream.APIKey = "sk-fallback"
	c := NewClient(cfg, nil)

	creds, ok := c.ResolveCredentials("", " sk-user ")
	if !ok || creds.BaseURL != "https://fallback.example.com" || creds.APIKey != "sk-user" {
		t.Errorf("creds = %+v ok=%v", creds, ok)
	}

	if _, ok := NewClient(&config.Config{}, nil).ResolveCredentials("https://x", ""); ok {
		t.Error("missing key should not resolve")
	}
}
