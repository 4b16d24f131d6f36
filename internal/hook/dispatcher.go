package hook

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Dispatcher fires subscribed hooks in the background. At most one run per
// hook and event is in flight; an event arriving while the same hook is
// still handling the previous one of its kind is dropped for that hook.
type Dispatcher struct {
	manager  *Manager
	executor *Executor
	logger   *zap.Logger
	onError  func(error)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	busy map[string]bool
}

// NewDispatcher creates a Dispatcher. onError may be nil.
func NewDispatcher(manager *Manager, executor *Executor, logger *zap.Logger, onError func(error)) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		manager:  manager,
		executor: executor,
		logger:   logger.Named("hook"),
		onError:  onError,
		ctx:      ctx,
		cancel:   cancel,
		busy:     make(map[string]bool),
	}
}

// Dispatch starts every hook subscribed to req.Event and returns how many
// were started.
func (d *Dispatcher) Dispatch(req Request) int {
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now()
	}

	started := 0
	for _, h := range d.manager.Subscribers(req.Event) {
		key := h.Manifest.Name + "/" + string(req.Event)
		if !d.claim(key) {
			d.logger.Debug("hook busy, skipping", zap.String("hook", h.Manifest.Name), zap.String("event", string(req.Event)))
			continue
		}
		started++

		d.wg.Add(1)
		go func(h *Hook, req Request) {
			defer d.wg.Done()
			defer d.release(key)
			d.run(h, &req)
		}(h, req)
	}
	return started
}

func (d *Dispatcher) run(h *Hook, req *Request) {
	resp, err := d.executor.Execute(d.ctx, h, req)
	if err != nil {
		if d.ctx.Err() != nil {
			return
		}
		d.logger.Warn("hook failed", zap.String("hook", h.Manifest.Name), zap.String("event", string(req.Event)), zap.Error(err))
		if d.onError != nil {
			d.onError(err)
		}
		return
	}
	if !resp.Success {
		d.logger.Warn("hook reported failure", zap.String("hook", h.Manifest.Name), zap.String("error", resp.Error))
		return
	}
	d.logger.Debug("hook ran", zap.String("hook", h.Manifest.Name), zap.String("event", string(req.Event)))
}

func (d *Dispatcher) claim(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.busy[key] {
		return false
	}
	d.busy[key] = true
	return true
}

func (d *Dispatcher) release(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.busy, key)
}

// Wait blocks until all running hooks have finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close cancels running hooks and waits for them to exit.
func (d *Dispatcher) Close() {
	d.cancel()
	d.wg.Wait()
}
