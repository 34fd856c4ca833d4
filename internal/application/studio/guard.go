package studio

import (
	"context"
	"sync"

	apperrors "z-novel-studio/pkg/errors"
	"z-novel-studio/pkg/metrics"
)

// inflight 记录每个会话正在进行的生成操作，同一会话同时只允许一个
type inflight struct {
	mu  sync.Mutex
	ops map[string]context.CancelFunc
}

func newInflight() *inflight {
	return &inflight{ops: make(map[string]context.CancelFunc)}
}

// acquire 占用会话，返回可被 Abort 取消的 ctx 与释放函数
func (g *inflight) acquire(ctx context.Context, sessionID string) (context.Context, func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.ops[sessionID]; busy {
		return nil, nil, apperrors.ErrSessionBusy
	}
	opCtx, cancel := context.WithCancel(ctx)
	g.ops[sessionID] = cancel
	metrics.ActiveGenerations.Inc()

	var once sync.Once
	release := func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.ops, sessionID)
			g.mu.Unlock()
			cancel()
			metrics.ActiveGenerations.Dec()
		})
	}
	return opCtx, release, nil
}

// cancel 取消会话上正在进行的操作，没有操作时返回 false
func (g *inflight) cancel(sessionID string) bool {
	g.mu.Lock()
	cancel, ok := g.ops[sessionID]
	g.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (g *inflight) busy(sessionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.ops[sessionID]
	return ok
}
