package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/aradsms/wa_gateway/internal/platform/settings"
	"github.com/aradsms/wa_gateway/internal/webhook_service/app"
	"github.com/aradsms/wa_gateway/internal/webhook_service/domain"
)

const DefaultMaxBodyBytes = 1 << 20 // 1 MB

// EventReceived is the body of every accepted delivery.
const EventReceived = "EVENT_RECEIVED"

// PayloadProcessor is what the handler needs from app.Processor.
type PayloadProcessor interface {
	Process(ctx context.Context, payload *domain.WebhookPayload, receivedAt time.Time) app.Result
}

type WebhookHandler struct {
	settings     settings.Provider
	limiter      *RateLimiter
	processor    PayloadProcessor
	validate     *validator.Validate
	logger       *slog.Logger
	maxBodyBytes int64
	now          func() time.Time
}

func NewWebhookHandler(sp settings.Provider, limiter *RateLimiter, processor PayloadProcessor, validate *validator.Validate, logger *slog.Logger, maxBodyBytes int64) *WebhookHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &WebhookHandler{
		settings:     sp,
		limiter:      limiter,
		processor:    processor,
		validate:     validate,
		logger:       logger.With("component", "webhook_handler"),
		maxBodyBytes: maxBodyBytes,
		now:          time.Now,
	}
}

func (h *WebhookHandler) Routes(r chi.Router) {
	r.Get("/webhook", h.Verify)
	r.Post("/webhook", h.Receive)
}

// queryParam accepts both the dotted and underscored forms of hub params.
func queryParam(r *http.Request, dotted, underscored string) string {
	q := r.URL.Query()
	if v := q.Get(dotted); v != "" {
		return v
	}
	return q.Get(underscored)
}

// Verify answers the subscription handshake.
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	mode := queryParam(r, "hub.mode", "hub_mode")
	token := queryParam(r, "hub.verify_token", "hub_verify_token")
	challenge := queryParam(r, "hub.challenge", "hub_challenge")
	expected := h.settings.GetString(settings.KeyWebhookVerifyToken, "")

	if mode != "subscribe" || token == "" || expected == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
		logger.WarnContext(ctx, "Webhook verification failed", "mode", mode, "token_present", token != "")
		webhookRequestsCounter.WithLabelValues("verify_forbidden").Inc()
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	logger.InfoContext(ctx, "Webhook verified")
	webhookRequestsCounter.WithLabelValues("verified").Inc()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(challenge)); err != nil {
		logger.WarnContext(ctx, "Failed to write verification response", "error", err)
	}
}

// Receive runs the delivery pipeline: signature, rate limit, JSON parse,
// shape validation, then processing. Once the request passes the checks the
// response is always 200.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	receivedAt := h.now().UTC()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			logger.WarnContext(ctx, "Webhook body too large", "limit", h.maxBodyBytes)
			webhookRequestsCounter.WithLabelValues("too_large").Inc()
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		logger.ErrorContext(ctx, "Failed to read webhook request body", "error", err)
		webhookRequestsCounter.WithLabelValues("read_error").Inc()
		http.Error(w, "Error reading request body", http.StatusBadRequest)
		return
	}

	// Signature first so unauthenticated traffic never spends rate budget.
	secret := h.settings.GetString(settings.KeyWebhookAppSecret, "")
	if err := VerifySignature(secret, raw, r.Header.Get(SignatureHeader)); err != nil {
		logger.WarnContext(ctx, "Webhook signature rejected", "error", err, "remote_addr", r.RemoteAddr)
		webhookRequestsCounter.WithLabelValues("unauthorized").Inc()
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	remaining, err := h.limiter.Allow(clientKey(r))
	if err != nil {
		var rlErr *domain.RateLimitError
		if errors.As(err, &rlErr) {
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rlErr.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(rlErr.Remaining))
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(rlErr.ResetAfter.Seconds()))))
		}
		logger.WarnContext(ctx, "Webhook rate limited", "client", clientKey(r), "error", err)
		webhookRequestsCounter.WithLabelValues("rate_limited").Inc()
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return
	}
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

	var payload domain.WebhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		logger.WarnContext(ctx, "Malformed webhook JSON", "error", err, "payload_size", len(raw))
		webhookRequestsCounter.WithLabelValues("bad_json").Inc()
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if err := h.validate.StructCtx(ctx, payload); err != nil {
		logger.WarnContext(ctx, "Webhook envelope failed validation", "error", err, "body", truncateBody(raw))
		webhookRequestsCounter.WithLabelValues("invalid_envelope").Inc()
		http.Error(w, "Invalid webhook envelope", http.StatusBadRequest)
		return
	}

	res := h.processor.Process(ctx, &payload, receivedAt)
	logger.InfoContext(ctx, "Webhook delivery accepted", "object", payload.Object, "entries", len(payload.Entry),
		"published", res.Published, "duplicates", res.Duplicates)
	webhookRequestsCounter.WithLabelValues("accepted").Inc()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(EventReceived)); err != nil {
		logger.WarnContext(ctx, "Failed to write webhook response", "error", err)
	}
}

// clientKey is the caller IP. chi's RealIP middleware rewrites RemoteAddr
// from proxy headers before this runs.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func truncateBody(raw []byte) string {
	const max = 500
	if len(raw) <= max {
		return string(raw)
	}
	return string(raw[:max]) + "...(truncated)"
}
