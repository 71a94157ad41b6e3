package enrichment

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	apperrors "github.com/alinorwa/nurse-assistant-management/pkg/errors"
	"github.com/alinorwa/nurse-assistant-management/pkg/logger"
	"github.com/alinorwa/nurse-assistant-management/pkg/metrics"
	"github.com/alinorwa/nurse-assistant-management/pkg/util"
)

var ErrPoolStopped = apperrors.New(apperrors.KindInternal, "enrichment pool stopped")

// ProcessFunc handles one message id.
type ProcessFunc func(ctx context.Context, messageID string) error

// Pool routes each message id to a fixed worker, so two runs for the same
// message never overlap while different messages proceed in parallel.
type Pool struct {
	process ProcessFunc
	queues  []chan string
	metrics *metrics.Metrics

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewPool(workers, queueSize int, fn ProcessFunc, m *metrics.Metrics) *Pool {
	if workers <= 0 {
		workers = 1
	}
	per := queueSize / workers
	if per <= 0 {
		per = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{process: fn, metrics: m, ctx: ctx, cancel: cancel}
	p.queues = make([]chan string, workers)
	for i := range p.queues {
		p.queues[i] = make(chan string, per)
	}
	return p
}

func (p *Pool) Start() {
	for i, q := range p.queues {
		p.wg.Add(1)
		go p.worker(i, q)
	}
	logger.Info("enrichment pool started", zap.Int("workers", len(p.queues)))
}

// Submit blocks while the partition is full, until ctx is done.
func (p *Pool) Submit(ctx context.Context, messageID string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}
	q := p.queues[util.Slot(messageID, len(p.queues))]
	select {
	case q <- messageID:
		p.metrics.AddQueueDepth(1)
		return nil
	case <-ctx.Done():
		return apperrors.Wrapf(ctx.Err(), apperrors.KindTransient, "enqueue %s", messageID)
	}
}

func (p *Pool) worker(idx int, q <-chan string) {
	defer p.wg.Done()
	for id := range q {
		p.metrics.AddQueueDepth(-1)
		p.runOne(idx, id)
	}
}

func (p *Pool) runOne(idx int, id string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("enrichment panic",
				zap.Int("worker", idx), zap.String("message_id", id), zap.String("panic", fmt.Sprint(r)))
		}
	}()
	if err := p.process(p.ctx, id); err != nil {
		logger.Debug("enrichment finished with error", zap.String("message_id", id), zap.Error(err))
	}
}

// Stop refuses new work and drains what is queued. When ctx expires first the
// in-flight runs are cancelled.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	for _, q := range p.queues {
		close(q)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}
