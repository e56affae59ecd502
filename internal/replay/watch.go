package replay

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/okian/twitch-sources/internal/adapters/http/ws"
)

// Watch streams the frames of topic to onFrame until ctx ends or the
// server closes the connection.
func Watch(ctx context.Context, baseURL, topic, token string, onFrame func([]byte)) error {
	u := "ws" + strings.TrimPrefix(strings.TrimRight(baseURL, "/"), "http") + ws.PathPrefix + topic
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u, h)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("watch %s: status %d: %w", topic, resp.StatusCode, err)
		}
		return fmt.Errorf("watch %s: %w", topic, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("watch %s: %w", topic, err)
		}
		onFrame(msg)
	}
}
