package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/okian/twitch-sources/internal/domain/eventsub"
	"github.com/okian/twitch-sources/pkg/logger"
	"github.com/okian/twitch-sources/pkg/metrics"
)

// Delivery message types.
const (
	MessageNotification = "notification"
	MessageVerification = "webhook_callback_verification"
	MessageRevocation   = "revocation"
)

// Delivery header names, without the platform prefix.
const (
	headerPrefix           = "Twitch-Eventsub-"
	HeaderMessageID        = "Message-Id"
	HeaderMessageType      = "Message-Type"
	HeaderMessageTimestamp = "Message-Timestamp"
	HeaderMessageSignature = "Message-Signature"
)

const maxWebhookBody = 1 << 20

// WebhookDependencies is what the receiver needs from the domain.
type WebhookDependencies interface {
	Lookup(ctx context.Context, externalID string) (eventsub.Subscription, error)
	Remove(ctx context.Context, externalID string) error
	HandleMessage(ctx context.Context, env eventsub.Envelope) error
}

// WebhookHandler receives upstream deliveries.
type WebhookHandler struct {
	deps   WebhookDependencies
	logger logger.Logger
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(deps WebhookDependencies) *WebhookHandler {
	return &WebhookHandler{deps: deps, logger: logger.Named("webhook")}
}

type webhookRequest struct {
	Subscription struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	} `json:"subscription"`
	Challenge *string         `json:"challenge,omitempty"`
	Event     json.RawMessage `json:"event,omitempty"`
}

// header reads a delivery header by its prefixed name and falls back to the
// bare name.
func header(r *http.Request, name string) string {
	if v := r.Header.Get(headerPrefix + name); v != "" {
		return v
	}
	return r.Header.Get(name)
}

// HandleWebhook handles POST /webhook/. Error responses have empty bodies.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	const op = "api.webhook"
	ctx := r.Context()
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	msgType := header(r, HeaderMessageType)
	timestamp := header(r, HeaderMessageTimestamp)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.reply(ctx, w, msgType, "too_large", http.StatusRequestEntityTooLarge, WrapKind(op, ErrBadRequest, err))
			return
		}
		h.reply(ctx, w, msgType, "read_error", http.StatusInternalServerError, WrapKind(op, ErrBadRequest, err))
		return
	}

	var req webhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.reply(ctx, w, msgType, "malformed", http.StatusInternalServerError, WrapKind(op, ErrBadRequest, err))
		return
	}

	sub, err := h.deps.Lookup(ctx, req.Subscription.ID)
	if err != nil {
		if msgType == MessageRevocation {
			h.reply(ctx, w, msgType, "unknown_revoked", http.StatusAccepted, nil)
			return
		}
		h.reply(ctx, w, msgType, "unknown_subscription", http.StatusInternalServerError, WrapKind(op, ErrUnknownSub, err))
		return
	}

	messageID := header(r, HeaderMessageID)
	signature := header(r, HeaderMessageSignature)
	if err := eventsub.Verify(sub.Secret, messageID, timestamp, body, signature); err != nil {
		metrics.RecordSignatureFailure()
		h.reply(ctx, w, msgType, "bad_signature", http.StatusForbidden, WrapKind(op, ErrForbidden, err))
		return
	}

	if msgType == MessageRevocation {
		if err := h.deps.Remove(ctx, sub.ExternalID); err != nil && !errors.Is(err, eventsub.ErrNotFound) {
			h.reply(ctx, w, msgType, "remove_failed", http.StatusInternalServerError, WrapKind(op, ErrUnknownSub, err))
			return
		}
		h.logger.Info(ctx, "subscription revoked",
			logger.String("external_id", sub.ExternalID),
			logger.String("type", sub.Type.String()))
		h.reply(ctx, w, msgType, "revoked", http.StatusAccepted, nil)
		return
	}

	if req.Challenge != nil {
		metrics.RecordWebhookDelivery(msgType, "challenge")
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, *req.Challenge)
		return
	}

	if len(req.Event) == 0 {
		h.reply(ctx, w, msgType, "empty", http.StatusInternalServerError, NewKind(op, ErrNoPayload))
		return
	}
	env, err := eventsub.ParseEnvelope(sub.Type, timestamp, req.Event)
	if err != nil {
		h.reply(ctx, w, msgType, "malformed_event", http.StatusInternalServerError, WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := h.deps.HandleMessage(ctx, env); err != nil {
		h.reply(ctx, w, msgType, "dispatch_failed", http.StatusInternalServerError, err)
		return
	}
	h.reply(ctx, w, msgType, "dispatched", http.StatusAccepted, nil)
}

func (h *WebhookHandler) reply(ctx context.Context, w http.ResponseWriter, msgType, result string, status int, err error) {
	metrics.RecordWebhookDelivery(msgType, result)
	if err != nil {
		h.logger.Warn(ctx, "webhook delivery rejected",
			logger.String("message_type", msgType),
			logger.Int("status", status),
			logger.Error(err))
	}
	w.WriteHeader(status)
}
