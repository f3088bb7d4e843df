package authshield

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// eventDispatcher appends security events to the EventLog. Synchronous mode
// appends inline; async mode hands events to a single writer goroutine.
// Append failures are logged and never surface to the caller.
type eventDispatcher struct {
	cfg     EventsConfig
	log     EventLog
	logger  *zap.Logger
	metrics *Metrics

	ch        chan *SecurityEvent
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func newEventDispatcher(cfg EventsConfig, log EventLog, logger *zap.Logger, metrics *Metrics) *eventDispatcher {
	if log == nil {
		return nil
	}

	d := &eventDispatcher{
		cfg:     cfg,
		log:     log,
		logger:  logger,
		metrics: metrics,
	}
	if !cfg.Async {
		return d
	}

	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	d.ch = make(chan *SecurityEvent, cfg.BufferSize)
	d.done = make(chan struct{})

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *eventDispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case ev := <-d.ch:
			d.append(context.Background(), ev)
		case <-d.done:
			for {
				select {
				case ev := <-d.ch:
					d.append(context.Background(), ev)
				default:
					return
				}
			}
		}
	}
}

func (d *eventDispatcher) append(ctx context.Context, ev *SecurityEvent) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := d.log.Append(ctx, ev); err != nil {
		d.metrics.Inc(MetricEventAppendFailed)
		d.logger.Warn("security event append failed",
			zap.String("type", string(ev.Type)),
			zap.String("event_id", ev.ID),
			zap.Error(err),
		)
	}
}

// Emit records ev. It never blocks past ctx cancellation in async mode.
func (d *eventDispatcher) Emit(ctx context.Context, ev *SecurityEvent) {
	if d == nil || ev == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if !d.cfg.Async {
		d.append(context.WithoutCancel(ctx), ev)
		return
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- ev:
		case <-d.done:
		default:
			d.dropped.Add(1)
			d.metrics.Inc(MetricEventDropped)
		}
		return
	}

	select {
	case d.ch <- ev:
	case <-ctx.Done():
	case <-d.done:
	}
}

// Close drains pending async events.
func (d *eventDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		if d.done != nil {
			close(d.done)
			d.wg.Wait()
		}
	})
}

// Dropped returns the number of events discarded because the buffer was full.
func (d *eventDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Log returns the underlying event log, or nil when events are discarded.
func (d *eventDispatcher) Log() EventLog {
	if d == nil {
		return nil
	}
	return d.log
}
