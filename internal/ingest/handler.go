// Package ingest exposes the webhook surface of the pipeline: provider
// webhooks per channel and a small admin endpoint for instance status.
// Provider authentication is assumed validated upstream by the gateway.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/leadwire/leadwire/internal/events"
	"github.com/leadwire/leadwire/internal/normalize"
	"github.com/leadwire/leadwire/internal/schema"
	"github.com/leadwire/leadwire/internal/tenancy"
	"github.com/leadwire/leadwire/pkg/logging"
)

const maxBodyBytes = 1 << 20

// Scheduler is the slice of the debounce layer the webhook handler calls.
type Scheduler interface {
	OnMessage(ctx context.Context, msg schema.InboundMessage) error
}

// Handler serves the ingest routes.
type Handler struct {
	normalizer *normalize.Normalizer
	scheduler  Scheduler
	publisher  events.Publisher
	logger     *logging.Logger
}

func NewHandler(normalizer *normalize.Normalizer, scheduler Scheduler, publisher events.Publisher, logger *logging.Logger) *Handler {
	if normalizer == nil {
		panic("ingest: normalizer required")
	}
	if scheduler == nil {
		panic("ingest: scheduler required")
	}
	if publisher == nil {
		panic("ingest: publisher required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		normalizer: normalizer,
		scheduler:  scheduler,
		publisher:  publisher,
		logger:     logger,
	}
}

// Routes mounts the ingest surface on a chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/webhooks/{channel}", h.HandleWebhook)
	r.Post("/instances/{instanceID}/status", h.HandleInstanceStatus)
	r.Get("/healthz", h.HandleHealth)
	return r
}

// HandleWebhook accepts one provider payload, normalizes it and hands it to
// the debounce scheduler. 202 means accepted for processing, not processed.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	channel := schema.Channel(chi.URLParam(r, "channel"))

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	msg, err := h.normalizer.Normalize(r.Context(), channel, body)
	if err != nil {
		if errors.Is(err, normalize.ErrUnsupportedChannel) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		var verr *schema.ValidationError
		if errors.As(err, &verr) {
			h.logger.Warn("rejected webhook payload", "channel", string(channel), "field", verr.Field, "reason", verr.Reason)
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
				"error": verr.Reason,
				"field": verr.Field,
			})
			return
		}
		http.Error(w, "normalization failed", http.StatusInternalServerError)
		return
	}

	ctx := tenancy.WithCompanyID(r.Context(), msg.CompanyID)
	if err := h.scheduler.OnMessage(ctx, msg); err != nil {
		h.logger.Error("failed to schedule message", "channel", string(channel), "error", err)
		http.Error(w, "failed to schedule message", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// HandleInstanceStatus publishes an instance.status event for admin tooling.
func (h *Handler) HandleInstanceStatus(w http.ResponseWriter, r *http.Request) {
	instanceID := chi.URLParam(r, "instanceID")

	var payload struct {
		CompanyID string `json:"company_id"`
		Status    string `json:"status"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&payload); err != nil {
		http.Error(w, "malformed JSON", http.StatusBadRequest)
		return
	}

	status := schema.InstanceStatus{
		InstanceID: instanceID,
		CompanyID:  payload.CompanyID,
		Status:     payload.Status,
	}
	if err := status.Validate(); err != nil {
		var verr *schema.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
				"error": verr.Reason,
				"field": verr.Field,
			})
			return
		}
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	if err := h.publisher.Publish(r.Context(), events.NewInstanceStatus(status)); err != nil {
		h.logger.Error("failed to publish instance status", "instance_id", instanceID, "error", err)
		http.Error(w, "failed to publish", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
