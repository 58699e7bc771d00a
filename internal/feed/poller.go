package feed

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// poller runs fetch once on start and then on every interval until stopped.
// Fetch failures are logged and never stop the loop.
type poller struct {
	name     string
	interval time.Duration
	fetch    func(ctx context.Context) error
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func (p *poller) start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.logger.Warn("Feed already running, ignoring duplicate start")
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	p.logger.Info("Feed started", zap.Duration("interval", p.interval))
	p.runFetch(loopCtx)

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				p.runFetch(loopCtx)
			}
		}
	}(p.done)
	return nil
}

func (p *poller) runFetch(ctx context.Context) {
	if err := p.fetch(ctx); err != nil {
		p.logger.Error("Feed fetch failed", zap.Error(err))
	}
}

func (p *poller) stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	p.logger.Info("Feed stopped")
}
