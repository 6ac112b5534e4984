package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"alert-service/internal/domain"
	"alert-service/internal/repository"
	"alert-service/internal/usecase"
	"alert-service/pkg/response"
	"alert-service/pkg/xerrors"
)

// maxBodySize bounds intake bodies; event payloads are small.
const maxBodySize = 1 << 20

type AlertHandler struct {
	uc     *usecase.AlertUsecase
	logger *zap.Logger
}

func NewAlertHandler(uc *usecase.AlertUsecase, logger *zap.Logger) *AlertHandler {
	return &AlertHandler{uc: uc, logger: logger}
}

// ----------------------
// Event intake
// ----------------------

func (h *AlertHandler) SpecChange(w http.ResponseWriter, r *http.Request) {
	h.ingest(w, r, domain.EventSpecChange)
}

func (h *AlertHandler) ExpirySoon(w http.ResponseWriter, r *http.Request) {
	h.ingest(w, r, domain.EventExpirySoon)
}

func (h *AlertHandler) Substitution(w http.ResponseWriter, r *http.Request) {
	h.ingest(w, r, domain.EventSubstitution)
}

func (h *AlertHandler) StockOut(w http.ResponseWriter, r *http.Request) {
	h.ingest(w, r, domain.EventStockOut)
}

func (h *AlertHandler) Prediction(w http.ResponseWriter, r *http.Request) {
	h.ingest(w, r, domain.EventPrediction)
}

func (h *AlertHandler) ingest(w http.ResponseWriter, r *http.Request, t domain.EventType) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "unreadable body")
		return
	}
	if len(body) == 0 {
		body = []byte("{}")
	}
	if !json.Valid(body) {
		response.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	n, err := h.uc.Ingest(r.Context(), t, body)
	if err != nil {
		if errors.Is(err, xerrors.ErrInvalidPayload) {
			response.Error(w, http.StatusBadRequest, "invalid payload")
			return
		}
		h.logger.Error("ingest failed", zap.String("type", string(t)), zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "could not store event")
		return
	}
	response.JSON(w, http.StatusCreated, map[string]int64{"id": n.ID})
}

// ----------------------
// Query & lifecycle
// ----------------------

func (h *AlertHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	state := domain.State(r.URL.Query().Get("state"))
	if state != "" && !domain.ValidState(state) {
		response.Error(w, http.StatusBadRequest, "unknown state")
		return
	}

	q := repository.ListQuery{
		State:   state,
		Station: r.URL.Query().Get("station"),
		Route:   r.URL.Query().Get("route"),
		Flight:  r.URL.Query().Get("flight"),
		Limit:   limit,
		Offset:  offset,
	}

	items, err := h.uc.List(r.Context(), q)
	if err != nil {
		// An unreadable store is an error, not an empty result.
		response.Error(w, http.StatusInternalServerError, "store unreadable")
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"data": items})
}

func (h *AlertHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.uc.Acknowledge)
}

func (h *AlertHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.uc.Resolve)
}

func (h *AlertHandler) lifecycle(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id int64) error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.Error(w, http.StatusNotFound, "not found")
		return
	}
	if err := fn(r.Context(), id); err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "not found")
			return
		}
		h.logger.Error("transition failed", zap.Int64("id", id), zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "could not update notification")
		return
	}
	response.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *AlertHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}
