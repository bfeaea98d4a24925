package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go-leave-ledger/internal/events"
	"go-leave-ledger/internal/leave"
	"go-leave-ledger/internal/messaging/sink"
	"go-leave-ledger/internal/shared/apperror"
	"go.uber.org/zap"
)

// Engine is the slice of the leave service the ingestor drives.
type Engine interface {
	ApplyEvent(ctx context.Context, ev leave.EventInput) (leave.Decision, error)
}

// ErrRetryable marks a failure after which the message must not be
// committed.
var ErrRetryable = errors.New("retryable ingest failure")

// Result says what happened to one event. Skipped events were rejected
// before reaching the engine and are not forwarded.
type Result struct {
	Record  events.DecisionRecord
	Skipped bool
}

type Processor struct {
	engine Engine
	sink   sink.Sink
	logger *zap.Logger
	now    func() time.Time
}

// NewProcessor builds an ingestor. sink may be nil.
func NewProcessor(engine Engine, s sink.Sink, logger ...*zap.Logger) *Processor {
	l := zap.L().Named("ingest.processor")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("ingest.processor")
	}
	return &Processor{engine: engine, sink: s, logger: l, now: time.Now}
}

// Decode parses a raw message value.
func Decode(value []byte) (events.LeaveEvent, error) {
	var ev events.LeaveEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		return events.LeaveEvent{}, fmt.Errorf("decode leave event: %w", err)
	}
	return ev, nil
}

func validate(ev events.LeaveEvent) error {
	switch {
	case strings.TrimSpace(ev.RequestID) == "":
		return errors.New("missing request_id")
	case strings.TrimSpace(ev.EmployeeID) == "":
		return errors.New("missing employee_id")
	case ev.EventType != events.EventTypeRequestCreated && ev.EventType != events.EventTypeRequestApproved:
		return fmt.Errorf("unknown event_type %q", ev.EventType)
	}
	return nil
}

// Process applies one event. The returned error wraps ErrRetryable when the
// primary state change did not happen and the event must be redelivered;
// every other outcome is final and the message can be committed.
func (p *Processor) Process(ctx context.Context, ev events.LeaveEvent) (Result, error) {
	log := p.logger.With(
		zap.String("request_id", ev.RequestID),
		zap.String("employee_id", ev.EmployeeID),
		zap.String("event_type", ev.EventType),
	)

	if err := validate(ev); err != nil {
		log.Warn("invalid leave event skipped", zap.Error(err))
		return Result{Skipped: true}, nil
	}

	in := leave.EventInput{
		RequestID:  strings.TrimSpace(ev.RequestID),
		EmployeeID: strings.TrimSpace(ev.EmployeeID),
		EventType:  ev.EventType,
		StartDate:  ev.StartDate,
		EndDate:    ev.EndDate,
		LeaveType:  ev.LeaveType,
		Days:       ev.Days,
	}
	if ev.CreatedAt != nil && *ev.CreatedAt != "" {
		if ts, err := events.ParseTimestamp(*ev.CreatedAt); err == nil {
			in.CreatedAt = ts
		} else {
			log.Debug("created_at ignored", zap.Error(err))
		}
	}

	rec := events.DecisionRecord{LeaveEvent: ev}
	decision, err := p.engine.ApplyEvent(ctx, in)
	if err != nil {
		httpErr := apperror.ToHTTP(err)
		if httpErr.Retryable() {
			log.Error("leave event not applied, will retry", zap.Int("status", httpErr.Status), zap.Error(err))
			return Result{}, fmt.Errorf("%w: %w", ErrRetryable, err)
		}
		if httpErr.Status == http.StatusBadRequest {
			log.Warn("invalid leave event skipped", zap.Error(err))
			return Result{Skipped: true}, nil
		}
		log.Error("leave event could not be decided", zap.String("code", httpErr.Code), zap.Error(err))
		rec.DecisionStatus = events.DecisionError
		rec.Reason = httpErr.Message
	} else {
		rec.DecisionStatus = decision.Status
		rec.Reason = decision.Reason
		rec.Duplicate = decision.Duplicate
		log.Info("leave event applied",
			zap.String("decision_status", decision.Status),
			zap.Bool("duplicate", decision.Duplicate),
		)
	}
	rec.ProcessedAt = p.now().UTC()

	if p.sink != nil {
		if err := p.sink.Forward(ctx, rec); err != nil {
			log.Warn("decision forward failed", zap.Error(err))
		}
	}
	return Result{Record: rec}, nil
}
