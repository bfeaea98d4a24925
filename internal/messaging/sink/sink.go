package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-leave-ledger/internal/events"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Sink receives decision records after the primary state change committed.
type Sink interface {
	Name() string
	Forward(ctx context.Context, rec events.DecisionRecord) error
}

const DefaultTimeout = 3 * time.Second

// Fanout forwards each record to every sink concurrently. A failing or slow
// sink never affects the others; failures are logged and returned joined.
type Fanout struct {
	sinks   []Sink
	timeout time.Duration
	logger  *zap.Logger
}

func NewFanout(timeout time.Duration, logger *zap.Logger, sinks ...Sink) *Fanout {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.L()
	}
	return &Fanout{sinks: sinks, timeout: timeout, logger: logger.Named("sink.fanout")}
}

func (f *Fanout) Name() string { return "fanout" }

func (f *Fanout) Forward(ctx context.Context, rec events.DecisionRecord) error {
	if len(f.sinks) == 0 {
		return nil
	}
	errs := make([]error, len(f.sinks))

	var g errgroup.Group
	for i, s := range f.sinks {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(ctx, f.timeout)
			defer cancel()
			if err := s.Forward(sctx, rec); err != nil {
				f.logger.Warn("sink forward failed",
					zap.String("sink", s.Name()),
					zap.String("request_id", rec.RequestID),
					zap.Error(err),
				)
				errs[i] = fmt.Errorf("%s: %w", s.Name(), err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
