package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"alert-service/internal/domain"
	"alert-service/internal/format"
	"alert-service/internal/repository"
	"alert-service/pkg/xerrors"
)

// Publisher pushes stored notification events toward connected clients.
// Satisfied by pkg/bus.
type Publisher interface {
	PublishNew(ctx context.Context, n *domain.Notification) error
	PublishTransition(ctx context.Context, ev domain.TransitionEvent) error
}

// AlertUsecase normalizes inbound events into stored alerts and drives
// their lifecycle.
type AlertUsecase struct {
	store     repository.Store
	publisher Publisher
	logger    *zap.Logger
}

func NewAlertUsecase(store repository.Store, publisher Publisher, logger *zap.Logger) *AlertUsecase {
	return &AlertUsecase{
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

// Ingest turns a raw event body into a persisted alert and fans it out.
// Missing payload fields are not an error; the formatter covers them with
// fallbacks.
func (uc *AlertUsecase) Ingest(ctx context.Context, t domain.EventType, body []byte) (*domain.Notification, error) {
	requestID := uuid.New().String()

	draft, err := domain.DraftFromIntake(t, body)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s event: %v", xerrors.ErrInvalidPayload, t, err)
	}
	draft.Payload.Message = format.Message(t, draft.Payload)

	n, err := uc.store.Append(ctx, draft)
	if err != nil {
		uc.logger.Error("append failed",
			zap.String("request", requestID),
			zap.String("type", string(t)),
			zap.Error(err))
		return nil, err
	}

	uc.logger.Info("alert stored",
		zap.String("request", requestID),
		zap.Int64("id", n.ID),
		zap.String("type", string(t)),
		zap.String("severity", string(n.Severity)),
		zap.String("station", n.Station),
		zap.String("route", n.Route),
		zap.String("flight", n.Flight))

	uc.publishAsync(func(ctx context.Context) error {
		return uc.publisher.PublishNew(ctx, n)
	}, n.ID)

	return n, nil
}

// List queries the store. Read failures propagate; an unreadable store is
// not an empty one.
func (uc *AlertUsecase) List(ctx context.Context, q repository.ListQuery) ([]*domain.Notification, error) {
	items, err := uc.store.List(ctx, q)
	if err != nil {
		uc.logger.Error("list failed", zap.Error(err))
		return nil, err
	}
	if items == nil {
		items = []*domain.Notification{}
	}
	return items, nil
}

func (uc *AlertUsecase) Get(ctx context.Context, id int64) (*domain.Notification, error) {
	return uc.store.Get(ctx, id)
}

// Acknowledge moves the alert to ack. Stale or duplicate calls succeed
// without effect and without a second push.
func (uc *AlertUsecase) Acknowledge(ctx context.Context, id int64) error {
	return uc.transition(ctx, id, domain.StateAck)
}

// Resolve moves the alert to resolved, directly from new if it was never
// acknowledged.
func (uc *AlertUsecase) Resolve(ctx context.Context, id int64) error {
	return uc.transition(ctx, id, domain.StateResolved)
}

func (uc *AlertUsecase) transition(ctx context.Context, id int64, target domain.State) error {
	n, changed, err := uc.store.Transition(ctx, id, target)
	if err != nil {
		return err
	}
	if !changed {
		uc.logger.Debug("stale transition ignored",
			zap.Int64("id", id),
			zap.String("target", string(target)),
			zap.String("state", string(n.State)))
		return nil
	}

	ev := domain.TransitionEvent{ID: id, State: target, At: time.Now().UTC()}
	uc.publishAsync(func(ctx context.Context) error {
		return uc.publisher.PublishTransition(ctx, ev)
	}, id)
	return nil
}

// publishAsync fires the push without blocking the request. Delivery is
// best effort; offline clients catch up via the query path.
func (uc *AlertUsecase) publishAsync(fn func(context.Context) error, id int64) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				uc.logger.Error("publish panic", zap.Int64("id", id), zap.Any("panic", r))
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := fn(ctx); err != nil {
			uc.logger.Warn("publish failed", zap.Int64("id", id), zap.Error(err))
		}
	}()
}
