// Package messaging 提供工作台事件流的生产与消费
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"z-novel-studio/pkg/logger"
	"z-novel-studio/pkg/metrics"
)

// MessageHandler 事件处理函数，返回 Permanent 包装的错误时不再重试
type MessageHandler func(ctx context.Context, msg *Message) error

// 死信原因
const (
	ReasonMalformed = "malformed"
	ReasonPermanent = "permanent"
	ReasonExhausted = "retries_exhausted"
)

// Consumer 工作台事件消费者。
// 处理失败的事件留在 pending 列表，按退避时间重新认领；
// 投递次数达到上限或失败不可重试时移入死信流。其他实例长时间未确认的事件会被接管。
type Consumer struct {
	backend       streamBackend
	stream        Stream
	group         ConsumerGroup
	name          string
	block         time.Duration
	batch         int64
	claimInterval time.Duration
	staleAfter    time.Duration
	maxDeliveries int64
	backoff       BackoffConfig

	mu          sync.RWMutex
	handlers    map[string]MessageHandler
	running     bool
	stopCh      chan struct{}
	lastReclaim time.Time
}

// ConsumerConfig 消费者配置
type ConsumerConfig struct {
	Stream        Stream
	Group         ConsumerGroup
	ConsumerName  string
	BlockTimeout  time.Duration
	ClaimInterval time.Duration
	// RetryLimit 单条事件最多投递的次数
	RetryLimit int
	Backoff    BackoffConfig
}

// NewConsumer 创建基于 Redis Stream 的消费者
func NewConsumer(client *redis.Client, cfg ConsumerConfig) *Consumer {
	return newConsumer(newRedisBackend(client, cfg.Stream, cfg.Group), cfg)
}

func newConsumer(backend streamBackend, cfg ConsumerConfig) *Consumer {
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.ClaimInterval <= 0 {
		cfg.ClaimInterval = 30 * time.Second
	}
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = 3
	}
	if cfg.Backoff.Initial <= 0 {
		cfg.Backoff = DefaultBackoffConfig()
	}
	return &Consumer{
		backend:       backend,
		stream:        cfg.Stream,
		group:         cfg.Group,
		name:          cfg.ConsumerName,
		block:         cfg.BlockTimeout,
		batch:         10,
		claimInterval: cfg.ClaimInterval,
		staleAfter:    max(5*time.Minute, cfg.Backoff.Max*2),
		maxDeliveries: int64(cfg.RetryLimit),
		backoff:       cfg.Backoff,
		handlers:      make(map[string]MessageHandler),
		stopCh:        make(chan struct{}),
	}
}

// RegisterHandler 注册事件处理器
func (c *Consumer) RegisterHandler(msgType string, handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[msgType] = handler
}

func (c *Consumer) handler(msgType string) MessageHandler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handlers[msgType]
}

// Start 确保消费者组存在并在后台开始消费
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("consumer already running")
	}
	c.running = true
	c.mu.Unlock()

	if err := c.backend.EnsureGroup(ctx); err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	go c.loop(ctx)
	return nil
}

// Stop 停止消费
func (c *Consumer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		close(c.stopCh)
		c.running = false
	}
}

func (c *Consumer) loop(ctx context.Context) {
	logger.Info(ctx, "consumer started", "stream", c.stream, "group", c.group, "consumer", c.name)
	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "consumer stopped due to context cancellation")
			return
		case <-c.stopCh:
			logger.Info(ctx, "consumer stopped")
			return
		default:
		}

		if err := c.poll(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			logger.Error(ctx, "failed to read studio events", err)
			select {
			case <-ctx.Done():
			case <-c.stopCh:
			case <-time.After(time.Second):
			}
		}
	}
}

// poll 执行一轮消费：先重试到期的失败事件，按间隔接管滞留事件，再读取新事件
func (c *Consumer) poll(ctx context.Context) error {
	c.retryDue(ctx)
	if time.Since(c.lastReclaim) >= c.claimInterval {
		c.reclaimStale(ctx)
		c.lastReclaim = time.Now()
	}

	msgs, err := c.backend.ReadNew(ctx, c.name, c.batch, c.block)
	if err != nil {
		return err
	}
	for _, xmsg := range msgs {
		c.process(ctx, xmsg, 1)
	}
	return nil
}

// process 处理一次投递，deliveries 为包含本次在内的投递次数
func (c *Consumer) process(ctx context.Context, xmsg redis.XMessage, deliveries int64) {
	ctx, span := tracer.Start(ctx, "consumer.process",
		trace.WithAttributes(
			attribute.String("stream", string(c.stream)),
			attribute.String("stream.message_id", xmsg.ID),
			attribute.Int64("deliveries", deliveries),
		))
	defer span.End()

	msg, err := decodeEnvelope(xmsg)
	if err != nil {
		logger.Warn(ctx, "undecodable studio event", "stream_id", xmsg.ID, "error", err.Error())
		c.deadLetter(ctx, xmsg, nil, ReasonMalformed, err)
		return
	}
	ctx = eventContext(ctx, msg)
	span.SetAttributes(
		attribute.String("message.id", msg.ID),
		attribute.String("message.type", msg.Type),
		attribute.String("session_id", msg.SessionID),
	)

	if RequiresSession(msg.Type) && strings.TrimSpace(msg.SessionID) == "" {
		// 无法归属的事件重试也不会成功
		logger.Warn(ctx, "studio event without session id dropped", "type", msg.Type, "message_id", msg.ID)
		c.settle(ctx, xmsg.ID, msg.Type, "dropped")
		return
	}
	handle := c.handler(msg.Type)
	if handle == nil {
		logger.Warn(ctx, "no handler for studio event", "type", msg.Type)
		c.settle(ctx, xmsg.ID, msg.Type, "unhandled")
		return
	}

	err = handle(ctx, msg)
	switch {
	case err == nil:
		c.settle(ctx, xmsg.ID, msg.Type, "success")
	case IsPermanent(err):
		span.RecordError(err)
		c.deadLetter(ctx, xmsg, msg, ReasonPermanent, err)
	case deliveries >= c.maxDeliveries:
		span.RecordError(err)
		c.deadLetter(ctx, xmsg, msg, ReasonExhausted, err)
	default:
		span.RecordError(err)
		metrics.RedisStreamProcessed.WithLabelValues(string(c.stream), msg.Type, "retry").Inc()
		metrics.StudioEventRetries.WithLabelValues(msg.Type).Inc()
		logger.Warn(ctx, "studio event failed, left pending for retry",
			"message_id", msg.ID,
			"deliveries", deliveries,
			"error", err.Error(),
		)
	}
}

// settle 确认事件并记录结果
func (c *Consumer) settle(ctx context.Context, id, msgType, status string) {
	if err := c.backend.Ack(ctx, id); err != nil {
		logger.Error(ctx, "failed to ack studio event", err, "stream_id", id)
		return
	}
	metrics.RedisStreamProcessed.WithLabelValues(string(c.stream), msgType, status).Inc()
}

// deadLetter 将原始事件连同失败原因写入死信流后确认。
// 写入失败时事件保留在 pending 列表，下次重试时再处理。
func (c *Consumer) deadLetter(ctx context.Context, xmsg redis.XMessage, msg *Message, reason string, cause error) {
	msgType := "unknown"
	values := map[string]interface{}{
		"original_stream": string(c.stream),
		"stream_id":       xmsg.ID,
		"reason":          reason,
		"error":           cause.Error(),
		"failed_at":       time.Now().Unix(),
	}
	if raw, ok := xmsg.Values["data"].(string); ok {
		values["data"] = raw
	}
	if msg != nil {
		msgType = msg.Type
		values["type"] = msg.Type
		values["session_id"] = msg.SessionID
	}

	if err := c.backend.DeadLetter(ctx, values); err != nil {
		logger.Error(ctx, "failed to write dead letter", err, "stream_id", xmsg.ID)
		return
	}
	logger.Warn(ctx, "studio event moved to dead letter stream",
		"stream_id", xmsg.ID,
		"type", msgType,
		"reason", reason,
	)
	metrics.StudioEventDeadLetters.WithLabelValues(msgType, reason).Inc()
	c.settle(ctx, xmsg.ID, msgType, "dead_letter")
}

// retryDue 重新认领本实例名下退避时间已到的失败事件
func (c *Consumer) retryDue(ctx context.Context) {
	pending, err := c.backend.Pending(ctx, c.name, c.batch)
	if err != nil {
		logger.Error(ctx, "failed to list pending studio events", err)
		return
	}
	for _, p := range pending {
		if p.RetryCount < c.maxDeliveries && p.Idle < c.backoff.CalculateBackoff(int(p.RetryCount)) {
			continue
		}
		c.redeliver(ctx, p, 0)
	}
}

// reclaimStale 接管其他实例空闲过久的事件，通常是实例崩溃遗留
func (c *Consumer) reclaimStale(ctx context.Context) {
	if c.staleAfter <= 0 {
		return
	}
	pending, err := c.backend.Pending(ctx, "", c.batch)
	if err != nil {
		logger.Error(ctx, "failed to list pending studio events for reclaim", err)
		return
	}
	for _, p := range pending {
		if p.Consumer == c.name || p.Idle < c.staleAfter {
			continue
		}
		logger.Info(ctx, "reclaiming stale studio event", "stream_id", p.ID, "owner", p.Consumer, "idle", p.Idle.String())
		c.redeliver(ctx, p, c.staleAfter)
	}
}

func (c *Consumer) redeliver(ctx context.Context, p redis.XPendingExt, minIdle time.Duration) {
	claimed, err := c.backend.Claim(ctx, c.name, minIdle, p.ID)
	if err != nil {
		logger.Error(ctx, "failed to claim studio event", err, "stream_id", p.ID)
		return
	}
	for _, xmsg := range claimed {
		if p.RetryCount < c.maxDeliveries {
			c.process(ctx, xmsg, p.RetryCount+1)
			continue
		}
		msg, derr := decodeEnvelope(xmsg)
		if derr != nil {
			c.deadLetter(ctx, xmsg, nil, ReasonMalformed, derr)
			continue
		}
		c.deadLetter(ctx, xmsg, msg, ReasonExhausted, fmt.Errorf("delivered %d times without success", p.RetryCount))
	}
}

// MonitorDLQ 每分钟上报消费积压，并在死信数量超过阈值时告警
func (c *Consumer) MonitorDLQ(ctx context.Context, alertThreshold int64) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.checkBacklog(ctx, alertThreshold)
		}
	}
}

func (c *Consumer) checkBacklog(ctx context.Context, alertThreshold int64) {
	if pending, err := c.backend.GroupPending(ctx); err == nil {
		metrics.RedisStreamLag.WithLabelValues(string(c.stream), string(c.group)).Set(float64(pending))
	}
	n, err := c.backend.DeadLetterLen(ctx)
	if err != nil {
		return
	}
	if n > alertThreshold {
		logger.Warn(ctx, "dead letter stream is growing", "stream", c.stream.DLQStream(), "count", n)
	}
}

func decodeEnvelope(xmsg redis.XMessage) (*Message, error) {
	raw, ok := xmsg.Values["data"].(string)
	if !ok {
		return nil, errors.New("missing data field")
	}
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}
	if msg.Type == "" {
		return nil, errors.New("event type is empty")
	}
	return &msg, nil
}

// eventContext 注入会话与链路信息到日志上下文
func eventContext(ctx context.Context, msg *Message) context.Context {
	if msg.SessionID != "" {
		ctx = logger.WithSession(ctx, msg.SessionID)
	}
	if traceID := msg.GetMetadata("trace_id"); traceID != "" {
		ctx = logger.WithContext(ctx, logger.TraceIDKey, traceID)
	}
	return ctx
}
