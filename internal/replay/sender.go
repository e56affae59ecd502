package replay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/okian/twitch-sources/internal/domain/eventsub"
)

// Sender signs deliveries and posts them to the bridge.
type Sender struct {
	client *http.Client
	url    string
	now    func() time.Time
	secret string
}

// NewSender builds a Sender for the bridge at baseURL. A non-empty secret
// overrides the secret of every delivery.
func NewSender(baseURL, secret string, timeout time.Duration) *Sender {
	return &Sender{
		client: &http.Client{Timeout: timeout},
		url:    strings.TrimRight(baseURL, "/") + "/webhook/",
		now:    time.Now,
		secret: secret,
	}
}

// Response is what the bridge answered to one delivery.
type Response struct {
	MessageID string
	Status    int
	Body      string
}

// Send signs d with a fresh message id and timestamp and posts it.
func (s *Sender) Send(ctx context.Context, d Delivery) (Response, error) {
	body, err := d.Body()
	if err != nil {
		return Response{}, fmt.Errorf("%w: %w", ErrSend, err)
	}
	secret := d.Secret
	if s.secret != "" {
		secret = s.secret
	}
	id := uuid.NewString()
	ts := s.now().UTC().Format(time.RFC3339Nano)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("%w: %w", ErrSend, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Twitch-Eventsub-Message-Id", id)
	req.Header.Set("Twitch-Eventsub-Message-Type", d.MessageType)
	req.Header.Set("Twitch-Eventsub-Message-Timestamp", ts)
	req.Header.Set("Twitch-Eventsub-Message-Signature", eventsub.Sign(secret, id, ts, body))

	resp, err := s.client.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %w", ErrSend, err)
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return Response{}, fmt.Errorf("%w: %w", ErrSend, err)
	}
	return Response{MessageID: id, Status: resp.StatusCode, Body: string(out)}, nil
}

// expectedStatus is the status the bridge answers a well-formed delivery with.
func expectedStatus(d Delivery) int {
	if d.ExpectStatus != 0 {
		return d.ExpectStatus
	}
	if d.MessageType == messageVerification {
		return http.StatusOK
	}
	return http.StatusAccepted
}
