package bridge

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/instrument"
)

// pool keeps idle instances per module key for reuse. Checkout hands
// each instance to exactly one caller; a poisoned or unrestorable
// instance is evicted instead of returned to the idle set.
type pool struct {
	limits  instrument.Limits
	maxIdle int
	logger  *zap.Logger

	mu   sync.Mutex
	idle map[string][]*Instance
}

func newPool(limits instrument.Limits, maxIdle int, logger *zap.Logger) *pool {
	return &pool{
		limits:  limits,
		maxIdle: maxIdle,
		logger:  logger,
		idle:    make(map[string][]*Instance),
	}
}

// checkout returns an exclusively owned instance for the handle's
// module, reusing the most recently idled one or instantiating fresh.
func (p *pool) checkout(ctx context.Context, h *Handle) (*Instance, error) {
	p.mu.Lock()
	key := h.Key()
	if list := p.idle[key]; len(list) > 0 {
		inst := list[len(list)-1]
		if len(list) == 1 {
			delete(p.idle, key)
		} else {
			p.idle[key] = list[:len(list)-1]
		}
		p.mu.Unlock()

		if err := inst.markBusy(); err != nil {
			return nil, err
		}
		return inst, nil
	}
	p.mu.Unlock()

	inst, err := newInstance(ctx, h, p.limits, p.logger)
	if err != nil {
		return nil, err
	}
	if err := inst.markBusy(); err != nil {
		inst.evict(ctx)
		return nil, err
	}
	return inst, nil
}

// finish returns an instance after a call. A poisoning error, a
// canceled context, or a failed baseline restore evicts; otherwise the
// instance idles for reuse, evicting the oldest idle one past the
// per-module bound.
func (p *pool) finish(ctx context.Context, inst *Instance, callErr error) {
	if callErr != nil && (errors.Poisons(callErr) || ctx.Err() != nil) {
		p.logger.Debug("instance poisoned",
			zap.String("key", inst.key()[:12]),
			zap.Error(callErr))
		inst.evict(ctx)
		return
	}
	if p.maxIdle == 0 {
		inst.evict(ctx)
		return
	}
	if err := inst.reset(); err != nil {
		p.logger.Debug("baseline restore failed, evicting",
			zap.String("key", inst.key()[:12]),
			zap.Error(err))
		inst.evict(ctx)
		return
	}
	if err := inst.markIdle(); err != nil {
		inst.evict(ctx)
		return
	}

	var oldest *Instance
	p.mu.Lock()
	key := inst.key()
	list := append(p.idle[key], inst)
	if len(list) > p.maxIdle {
		oldest = list[0]
		list = list[1:]
	}
	p.idle[key] = list
	p.mu.Unlock()

	if oldest != nil {
		p.logger.Debug("idle bound exceeded, evicting oldest",
			zap.String("key", key[:12]))
		oldest.evict(ctx)
	}
}

// close evicts every idle instance. In-flight instances belong to their
// callers and are expected to be finished already.
func (p *pool) close(ctx context.Context) {
	p.mu.Lock()
	idle := p.idle
	p.idle = make(map[string][]*Instance)
	p.mu.Unlock()

	for _, list := range idle {
		for _, inst := range list {
			inst.evict(ctx)
		}
	}
}

func (p *pool) idleCount(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle[key])
}
