// Package webhook receives scheduling and order webhooks over HTTP and
// hands them to the sync engine.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/syc/clubsync/logging"
	"github.com/syc/clubsync/metrics"
	"github.com/syc/clubsync/report"
)

const (
	maxBodyBytes    = 1 << 20
	signatureHeader = "X-Acuity-Signature"

	// Response bodies. Scheduling webhooks always get 200 so the sender
	// never redelivers an event whose sync already had side effects.
	BodySuccess = "executed successfully"
	BodyIssues  = "executed with issues"
)

// ErrBadSignature is returned when the signature header does not match.
var ErrBadSignature = errors.New("webhook signature mismatch")

// Event is one decoded scheduling webhook.
type Event struct {
	Action            string
	ID                string
	CalendarID        string
	AppointmentTypeID string
	RunID             string
}

// EventHandler processes scheduling events.
type EventHandler interface {
	Handle(ctx context.Context, ev Event) error
}

// OrderInserter stores completed orders.
type OrderInserter interface {
	InsertOrder(ctx context.Context, o report.RawOrder) (int, error)
}

// Handler serves the webhook endpoints. Events and Orders may be nil when
// the matching backend is not configured.
type Handler struct {
	Secret  string
	Events  EventHandler
	Orders  OrderInserter
	Metrics *metrics.Registry
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/acuity", h.HandleAcuity)
	r.Post("/orders", h.HandleOrder)
	r.Get("/healthz", h.HandleHealth)
	return r
}

func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleAcuity decodes a scheduling webhook and routes it. Only a bad
// signature is answered with an error status.
func (h *Handler) HandleAcuity(w http.ResponseWriter, r *http.Request) {
	runID := uuid.NewString()
	logger := slog.With("run_id", runID)

	raw, err := readBody(w, r)
	if err != nil {
		logger.Warn("Failed to read webhook body", "error", err)
		h.respond(w, "unknown", err)
		return
	}

	if err := verifySignature(h.Secret, raw, r.Header.Get(signatureHeader)); err != nil {
		logger.Warn("Rejected webhook", "error", err)
		h.Metrics.Event("unknown", "rejected")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	ev, err := ParseEvent(raw)
	if err != nil {
		logger.Warn("Malformed webhook", "error", err)
		h.respond(w, "unknown", err)
		return
	}
	ev.RunID = runID

	if h.Events == nil {
		logger.Error("No event handler configured", "action", ev.Action)
		h.respond(w, ev.Action, errors.New("event handling disabled"))
		return
	}

	logger.Info("Webhook received", "action", ev.Action, "id", ev.ID)
	h.respond(w, ev.Action, h.Events.Handle(r.Context(), ev))
}

func (h *Handler) respond(w http.ResponseWriter, action string, err error) {
	body, outcome := BodySuccess, "ok"
	if err != nil {
		body, outcome = BodyIssues, "issues"
	}
	h.Metrics.Event(action, outcome)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// HandleOrder stores a completed order. Unlike scheduling webhooks this
// answers 400 for bad payloads and 500 for storage failures.
func (h *Handler) HandleOrder(w http.ResponseWriter, r *http.Request) {
	if h.Orders == nil {
		http.Error(w, "order storage not configured", http.StatusServiceUnavailable)
		return
	}

	raw, err := readBody(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var order report.RawOrder
	if err := json.Unmarshal(raw, &order); err != nil {
		http.Error(w, fmt.Sprintf("invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	n, err := h.Orders.InsertOrder(r.Context(), order)
	if errors.Is(err, report.ErrMalformed) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		slog.Error("Failed to store order", "order", order.OrderNumber, "error", err)
		http.Error(w, "error inserting data", http.StatusInternalServerError)
		return
	}

	slog.Info("Stored order", "order", order.OrderNumber,
		"email", logging.RedactEmail(order.CustomerEmail), "line_items", n)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"inserted": n})
}

// envelope is the transport wrapper some gateways put around the body.
type envelope struct {
	Body            *string `json:"body"`
	IsBase64Encoded bool    `json:"isBase64Encoded"`
}

// readBody returns the request body with any transport envelope removed.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	return unwrap(data)
}

func unwrap(data []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return data, nil
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil || env.Body == nil {
		// Plain JSON, not an envelope.
		return data, nil
	}
	if !env.IsBase64Encoded {
		return []byte(*env.Body), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(*env.Body)
	if err != nil {
		return nil, fmt.Errorf("decoding base64 body: %w", err)
	}
	return decoded, nil
}

// verifySignature checks a base64 HMAC-SHA256 of the body. An empty
// secret disables the check.
func verifySignature(secret string, body []byte, signature string) error {
	if secret == "" {
		return nil
	}
	if !hmac.Equal([]byte(Sign(secret, body)), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}

// Sign returns the signature header value for a body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ParseEvent decodes a URL-encoded scheduling webhook body.
func ParseEvent(body []byte) (Event, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return Event{}, fmt.Errorf("parsing form body: %w", err)
	}
	ev := Event{
		Action:            values.Get("action"),
		ID:                values.Get("id"),
		CalendarID:        values.Get("calendarID"),
		AppointmentTypeID: values.Get("appointmentTypeID"),
	}
	if ev.Action == "" || ev.ID == "" {
		return Event{}, fmt.Errorf("webhook body missing action or id")
	}
	return ev, nil
}
