// Package ws relays fan-out messages to widget WebSocket connections.
//
// A session authenticates the caller, provisions the upstream subscriptions
// of the requested topic, then forwards every message published on
// (caller, topic) until either side goes away.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/okian/twitch-sources/internal/adapters/mq/pubsub"
	"github.com/okian/twitch-sources/internal/domain/eventsub"
	"github.com/okian/twitch-sources/internal/domain/subscription"
	"github.com/okian/twitch-sources/pkg/logger"
	"github.com/okian/twitch-sources/pkg/metrics"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 512
	maxCloseReasonLen = 123

	// PathPrefix is the route prefix of every topic endpoint.
	PathPrefix = "/ws/sources/"
)

// Authenticator resolves the caller's user id from a request.
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

// Users reads user records; unknown users return an error matching
// eventsub.ErrNotFound.
type Users interface {
	GetUser(ctx context.Context, id string) (eventsub.User, error)
}

// Provisioner gets or creates the upstream subscriptions of a session.
type Provisioner interface {
	GetOrCreate(ctx context.Context, types []eventsub.SubType, cond eventsub.Condition) ([]eventsub.Subscription, error)
	UpdateConnectTime(ctx context.Context, externalIDs []string)
	UpdateDisconnectTime(ctx context.Context, externalIDs []string)
}

// Subscriber opens fan-out streams.
type Subscriber interface {
	Subscribe(ctx context.Context, owner, topic string) (*pubsub.Subscription, error)
}

// Relay serves one WebSocket endpoint per topic.
type Relay struct {
	auth       Authenticator
	users      Users
	prov       Provisioner
	subscriber Subscriber
	upgrader   websocket.Upgrader
	pingPeriod time.Duration
	pongWait   time.Duration
	logger     logger.Logger

	root   context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewRelay builds a relay.
func NewRelay(auth Authenticator, users Users, prov Provisioner, sub Subscriber, opts ...Option) *Relay {
	root, cancel := context.WithCancel(context.Background())
	rl := &Relay{
		auth:       auth,
		users:      users,
		prov:       prov,
		subscriber: sub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		pingPeriod: pingPeriod,
		pongWait:   pongWait,
		logger:     logger.Named("relay"),
		root:       root,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

// Register mounts one endpoint per topic on mux.
func (rl *Relay) Register(mux *http.ServeMux, wrap func(http.HandlerFunc, string) http.HandlerFunc) {
	for _, tp := range eventsub.Topics {
		h := rl.HandleTopic(tp)
		if wrap != nil {
			h = wrap(h, "ws_"+tp.Name)
		}
		mux.HandleFunc(PathPrefix+tp.Name, h)
	}
}

// Close ends every open session and waits for them to finish.
func (rl *Relay) Close() {
	rl.mu.Lock()
	rl.closed = true
	rl.mu.Unlock()
	rl.cancel()
	rl.wg.Wait()
}

// track registers a handler with the wait group unless the relay is closed.
func (rl *Relay) track() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.closed {
		return false
	}
	rl.wg.Add(1)
	return true
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func reject(w http.ResponseWriter, status int, code string, err error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Code: code, Message: err.Error()})
}

// HandleTopic serves GET /ws/sources/{topic}.
func (rl *Relay) HandleTopic(tp eventsub.Topic) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		if !rl.track() {
			reject(w, http.StatusServiceUnavailable, "unavailable", ErrClosed)
			return
		}
		defer rl.wg.Done()

		userID, err := rl.auth.Authenticate(r)
		if err != nil {
			metrics.RecordSessionRejected(tp.Name, "unauthenticated")
			reject(w, http.StatusForbidden, "access_denied", err)
			return
		}
		log := rl.logger.With(logger.String("user_id", userID), logger.String("topic", tp.Name))

		user, err := rl.users.GetUser(ctx, userID)
		switch {
		case errors.Is(err, eventsub.ErrNotFound):
			metrics.RecordSessionRejected(tp.Name, "unknown_user")
			reject(w, http.StatusForbidden, "access_denied", ErrUnknownUser)
			return
		case err != nil:
			metrics.RecordSessionRejected(tp.Name, "user_lookup")
			log.Error(ctx, "user lookup failed", logger.Error(err))
			reject(w, http.StatusInternalServerError, "internal_error", err)
			return
		case !user.HasScopes(tp.Scopes):
			metrics.RecordSessionRejected(tp.Name, "scopes")
			reject(w, http.StatusForbidden, "access_denied", ErrMissingScopes)
			return
		}

		subs, err := rl.prov.GetOrCreate(ctx, tp.Types, eventsub.BroadcasterCondition(userID))
		if err != nil {
			metrics.RecordSessionRejected(tp.Name, "provisioning")
			log.Error(ctx, "subscription provisioning failed", logger.Error(err))
			reject(w, http.StatusInternalServerError, "internal_error", err)
			return
		}
		ids := subscription.ExternalIDs(subs)

		sessCtx, cancel := context.WithCancel(rl.root)
		defer cancel()
		stream, err := rl.subscriber.Subscribe(sessCtx, userID, tp.Name)
		if err != nil {
			metrics.RecordSessionRejected(tp.Name, "subscribe")
			log.Error(ctx, "fan-out subscribe failed", logger.Error(err))
			reject(w, http.StatusInternalServerError, "internal_error", err)
			return
		}
		defer stream.Cancel()

		conn, err := rl.upgrader.Upgrade(w, r, nil)
		if err != nil {
			metrics.RecordSessionRejected(tp.Name, "upgrade")
			log.Warn(ctx, "websocket upgrade failed", logger.Error(err))
			return
		}
		rl.prov.UpdateConnectTime(ctx, ids)

		metrics.SessionOpened(tp.Name)
		defer metrics.SessionClosed(tp.Name)
		log.Info(ctx, "session opened")

		s := &session{
			relay:  rl,
			conn:   conn,
			topic:  tp.Name,
			ids:    ids,
			stream: stream,
			cancel: cancel,
			logger: log,
		}
		s.run(sessCtx)
		log.Info(ctx, "session closed")
	}
}

// session is one streaming connection. Reads happen on the handler
// goroutine and writes on writePump.
type session struct {
	relay  *Relay
	conn   *websocket.Conn
	topic  string
	ids    []string
	stream *pubsub.Subscription
	cancel context.CancelFunc
	logger logger.Logger

	disconnectOnce sync.Once
}

func (s *session) run(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writePump(ctx)
		// unblocks readPump when the write side ends first
		_ = s.conn.Close()
	}()
	s.readPump(ctx)
	s.cancel()
	<-done
	s.markDisconnected()
}

func (s *session) markDisconnected() {
	s.disconnectOnce.Do(func() {
		// the request context may already be gone
		s.relay.prov.UpdateDisconnectTime(context.Background(), s.ids)
	})
}

func (s *session) readPump(ctx context.Context) {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.relay.pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.relay.pongWait))
	})
	s.conn.SetCloseHandler(func(code int, text string) error {
		s.markDisconnected()
		msg := websocket.FormatCloseMessage(code, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		return nil
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.logger.Warn(ctx, "websocket read error", logger.Error(err))
			}
			return
		}
		// client payloads carry no meaning
	}
}

func (s *session) writePump(ctx context.Context) {
	ticker := time.NewTicker(s.relay.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-s.stream.C():
			if !ok {
				if err := s.stream.Err(); err != nil {
					s.fail(ctx, err)
				}
				return
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.logger.Debug(ctx, "websocket write failed", logger.Error(err))
				return
			}
			metrics.RecordMessageSent(s.topic)
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.logger.Debug(ctx, "websocket ping failed", logger.Error(err))
				return
			}
		case <-ctx.Done():
			if s.relay.root.Err() != nil {
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
				_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			}
			return
		}
	}
}

// fail ends the session after a stream error with close code 1011.
func (s *session) fail(ctx context.Context, err error) {
	s.logger.Error(ctx, "fan-out stream failed", logger.Error(err))
	s.markDisconnected()
	reason := err.Error()
	if len(reason) > maxCloseReasonLen {
		reason = reason[:maxCloseReasonLen]
	}
	msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, reason)
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
