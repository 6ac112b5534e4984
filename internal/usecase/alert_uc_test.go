package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"alert-service/internal/domain"
	"alert-service/internal/repository"
	"alert-service/pkg/xerrors"
)

// recordingPublisher captures pushes on channels so tests can wait for the
// async publish.
type recordingPublisher struct {
	news        chan *domain.Notification
	transitions chan domain.TransitionEvent
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{
		news:        make(chan *domain.Notification, 16),
		transitions: make(chan domain.TransitionEvent, 16),
	}
}

func (p *recordingPublisher) PublishNew(ctx context.Context, n *domain.Notification) error {
	p.news <- n
	return nil
}

func (p *recordingPublisher) PublishTransition(ctx context.Context, ev domain.TransitionEvent) error {
	p.transitions <- ev
	return nil
}

func newTestUsecase(t *testing.T) (*AlertUsecase, *recordingPublisher) {
	t.Helper()
	store, err := repository.NewMemoryStore("")
	require.NoError(t, err)
	pub := newRecordingPublisher()
	return NewAlertUsecase(store, pub, zap.NewNop()), pub
}

func waitNew(t *testing.T, pub *recordingPublisher) *domain.Notification {
	t.Helper()
	select {
	case n := <-pub.news:
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("no notification push")
		return nil
	}
}

func waitTransition(t *testing.T, pub *recordingPublisher) domain.TransitionEvent {
	t.Helper()
	select {
	case ev := <-pub.transitions:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no transition push")
		return domain.TransitionEvent{}
	}
}

func TestIngestStoresAndPublishes(t *testing.T) {
	uc, pub := newTestUsecase(t)

	body := []byte(`{"productCode":"P1","productName":"Leche","cutDate":"2025-01-01T00:00:00Z","station":"S1","route":"R1"}`)
	n, err := uc.Ingest(context.Background(), domain.EventExpirySoon, body)
	require.NoError(t, err)

	assert.Equal(t, domain.SeverityUrgent, n.Severity)
	assert.Equal(t, "S1", n.Station)
	assert.Equal(t, "R1", n.Route)
	assert.Equal(t, "P1", n.ProductCode)
	assert.Equal(t, domain.StateNew, n.State)
	assert.Contains(t, n.Payload.Message, "Leche")

	pushed := waitNew(t, pub)
	assert.Equal(t, n.ID, pushed.ID)
}

func TestIngestEmptyBodyStillFormats(t *testing.T) {
	uc, pub := newTestUsecase(t)

	n, err := uc.Ingest(context.Background(), domain.EventExpirySoon, []byte(`{}`))
	require.NoError(t, err)
	assert.Contains(t, n.Payload.Message, "producto")
	assert.Contains(t, n.Payload.Message, "pronto")
	waitNew(t, pub)
}

func TestIngestSeverityFixedPerType(t *testing.T) {
	uc, _ := newTestUsecase(t)
	cases := map[domain.EventType]domain.Severity{
		domain.EventSpecChange:   domain.SeverityHigh,
		domain.EventSubstitution: domain.SeverityHigh,
		domain.EventExpirySoon:   domain.SeverityUrgent,
		domain.EventStockOut:     domain.SeverityHigh,
		domain.EventPrediction:   domain.SeverityInfo,
	}
	for et, want := range cases {
		n, err := uc.Ingest(context.Background(), et, []byte(`{}`))
		require.NoError(t, err)
		assert.Equal(t, want, n.Severity, "type %s", et)
	}
}

func TestIngestStockOutKeepsExtraFields(t *testing.T) {
	uc, _ := newTestUsecase(t)
	body := []byte(`{"route":"R1","productCode":"P2","warehouse":"W9","qty":3}`)
	n, err := uc.Ingest(context.Background(), domain.EventStockOut, body)
	require.NoError(t, err)
	assert.Equal(t, "W9", n.Payload.Extra["warehouse"])
	assert.Equal(t, float64(3), n.Payload.Extra["qty"])
}

func TestAcknowledgePublishesOnce(t *testing.T) {
	uc, pub := newTestUsecase(t)
	n, err := uc.Ingest(context.Background(), domain.EventStockOut, []byte(`{"station":"S1"}`))
	require.NoError(t, err)
	waitNew(t, pub)

	require.NoError(t, uc.Acknowledge(context.Background(), n.ID))
	ev := waitTransition(t, pub)
	assert.Equal(t, n.ID, ev.ID)
	assert.Equal(t, domain.StateAck, ev.State)

	// Duplicate ack: success, no second push.
	require.NoError(t, uc.Acknowledge(context.Background(), n.ID))
	select {
	case ev := <-pub.transitions:
		t.Fatalf("unexpected push for stale transition: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestResolveUnknownID(t *testing.T) {
	uc, _ := newTestUsecase(t)
	err := uc.Resolve(context.Background(), 12345)
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestListEmptyIsNotNil(t *testing.T) {
	uc, _ := newTestUsecase(t)
	items, err := uc.List(context.Background(), repository.ListQuery{})
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}
