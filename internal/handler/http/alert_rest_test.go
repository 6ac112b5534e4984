package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"alert-service/internal/domain"
	"alert-service/internal/repository"
	"alert-service/internal/usecase"
)

type nopPublisher struct{}

func (nopPublisher) PublishNew(ctx context.Context, n *domain.Notification) error { return nil }
func (nopPublisher) PublishTransition(ctx context.Context, ev domain.TransitionEvent) error {
	return nil
}

func newTestRouter(t *testing.T, store repository.Store) chi.Router {
	t.Helper()
	logger := zap.NewNop()
	uc := usecase.NewAlertUsecase(store, nopPublisher{}, logger)
	h := NewAlertHandler(uc, logger)

	r := chi.NewRouter()
	r.Post("/events/spec-change", h.SpecChange)
	r.Post("/events/expiry-soon", h.ExpirySoon)
	r.Post("/events/substitution", h.Substitution)
	r.Post("/events/stock-out", h.StockOut)
	r.Post("/events/prediction", h.Prediction)
	r.Get("/notifications", h.ListNotifications)
	r.Post("/notifications/{id}/ack", h.Acknowledge)
	r.Post("/notifications/{id}/resolve", h.Resolve)
	return r
}

func newMemRouter(t *testing.T) chi.Router {
	t.Helper()
	store, err := repository.NewMemoryStore("")
	require.NoError(t, err)
	return newTestRouter(t, store)
}

func do(r chi.Router, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func listData(t *testing.T, r chi.Router, target string) []*domain.Notification {
	t.Helper()
	w := do(r, http.MethodGet, target, "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data []*domain.Notification `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Data
}

func TestExpirySoonIntakeToQuery(t *testing.T) {
	r := newMemRouter(t)

	w := do(r, http.MethodPost, "/events/expiry-soon", `{
		"productCode": "P-88",
		"productName": "Leche UHT",
		"lot": "L-31",
		"cutDate": "2026-09-01T06:30:00Z",
		"station": "MAD",
		"route": "R-12"
	}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, int64(1), created.ID)

	items := listData(t, r, "/notifications?station=MAD")
	require.Len(t, items, 1)
	got := items[0]
	assert.Equal(t, domain.EventExpirySoon, got.Type)
	assert.Equal(t, domain.SeverityUrgent, got.Severity)
	assert.Equal(t, domain.StateNew, got.State)
	assert.Equal(t, "MAD", got.Station)
	assert.Contains(t, got.Payload.Message, "Leche UHT")

	// A different station sees nothing.
	assert.Empty(t, listData(t, r, "/notifications?station=BCN"))
}

func TestIntakeEmptyBody(t *testing.T) {
	r := newMemRouter(t)
	w := do(r, http.MethodPost, "/events/stock-out", "")
	require.Equal(t, http.StatusCreated, w.Code)

	items := listData(t, r, "/notifications")
	require.Len(t, items, 1)
	assert.NotEmpty(t, items[0].Payload.Message)
}

func TestIntakeMalformedJSON(t *testing.T) {
	r := newMemRouter(t)
	w := do(r, http.MethodPost, "/events/spec-change", `{"drawer": `)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, listData(t, r, "/notifications"))
}

func TestIntakeNonObjectBody(t *testing.T) {
	r := newMemRouter(t)

	// Valid JSON that is not an object is a caller error, not a server one.
	w := do(r, http.MethodPost, "/events/stock-out", `[1]`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/events/prediction", `"hola"`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Empty(t, listData(t, r, "/notifications"))
}

func TestListUnknownState(t *testing.T) {
	r := newMemRouter(t)
	w := do(r, http.MethodGet, "/notifications?state=open", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAcknowledgeFlow(t *testing.T) {
	r := newMemRouter(t)
	require.Equal(t, http.StatusCreated,
		do(r, http.MethodPost, "/events/substitution", `{"productCode":"P1","route":"R1"}`).Code)

	w := do(r, http.MethodPost, "/notifications/1/ack", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())

	items := listData(t, r, "/notifications?state=ack")
	require.Len(t, items, 1)
	assert.NotNil(t, items[0].AcknowledgedAt)
}

func TestDoubleResolveIdempotent(t *testing.T) {
	r := newMemRouter(t)
	require.Equal(t, http.StatusCreated,
		do(r, http.MethodPost, "/events/prediction", `{"route":"R1","drawer":"D2"}`).Code)

	first := do(r, http.MethodPost, "/notifications/1/resolve", "")
	require.Equal(t, http.StatusOK, first.Code)

	items := listData(t, r, "/notifications?state=resolved")
	require.Len(t, items, 1)
	require.NotNil(t, items[0].ResolvedAt)
	stamp := *items[0].ResolvedAt

	second := do(r, http.MethodPost, "/notifications/1/resolve", "")
	assert.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, `{"ok":true}`, second.Body.String())

	items = listData(t, r, "/notifications?state=resolved")
	require.Len(t, items, 1)
	assert.True(t, items[0].ResolvedAt.Equal(stamp))
}

func TestAckAfterResolveKeepsState(t *testing.T) {
	r := newMemRouter(t)
	require.Equal(t, http.StatusCreated,
		do(r, http.MethodPost, "/events/stock-out", `{"station":"MAD"}`).Code)
	require.Equal(t, http.StatusOK,
		do(r, http.MethodPost, "/notifications/1/resolve", "").Code)

	// Stale ack after resolve succeeds but changes nothing.
	w := do(r, http.MethodPost, "/notifications/1/ack", "")
	assert.Equal(t, http.StatusOK, w.Code)

	items := listData(t, r, "/notifications")
	require.Len(t, items, 1)
	assert.Equal(t, domain.StateResolved, items[0].State)
	assert.Nil(t, items[0].AcknowledgedAt)
}

func TestLifecycleUnknownID(t *testing.T) {
	r := newMemRouter(t)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPost, "/notifications/99/ack", "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPost, "/notifications/abc/resolve", "").Code)
}

type failingStore struct{}

var errDisk = errors.New("disk gone")

func (failingStore) Append(ctx context.Context, draft *domain.Notification) (*domain.Notification, error) {
	return nil, errDisk
}
func (failingStore) Get(ctx context.Context, id int64) (*domain.Notification, error) {
	return nil, errDisk
}
func (failingStore) List(ctx context.Context, q repository.ListQuery) ([]*domain.Notification, error) {
	return nil, errDisk
}
func (failingStore) Transition(ctx context.Context, id int64, target domain.State) (*domain.Notification, bool, error) {
	return nil, false, errDisk
}

func TestStoreFailureIsExplicit(t *testing.T) {
	r := newTestRouter(t, failingStore{})

	w := do(r, http.MethodGet, "/notifications", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "store unreadable")

	w = do(r, http.MethodPost, "/events/stock-out", `{}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = do(r, http.MethodPost, "/notifications/1/resolve", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
