package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"kool/internal/events"
)

const streamKeepAlive = 25 * time.Second

// StreamReady is the first event on every stream; the subscription is live
// once it arrives.
type StreamReady struct {
	UserID string `json:"user_id"`
}

type StreamPing struct {
	TS string `json:"ts" format:"date-time"`
}

func (rt *routes) registerStream(api huma.API) {
	sse.Register(api, huma.Operation{
		OperationID: "event-stream",
		Method:      http.MethodGet,
		Path:        "/events/stream",
		Summary:     "Realtime notifications for the current user",
		Description: "Server-sent events. Notifications published while the stream is open are delivered; " +
			"a slow reader misses notifications rather than blocking writers.",
	}, map[string]any{
		"ready":        StreamReady{},
		"notification": events.Notification{},
		"ping":         StreamPing{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return
		}
		ch, unsubscribe := rt.e.Hub.Subscribe(userID)
		defer unsubscribe()
		log := rt.log.With("user_id", userID)
		log.DebugContext(ctx, "event stream opened")
		defer log.DebugContext(ctx, "event stream closed")

		if err := send.Data(StreamReady{UserID: userID}); err != nil {
			return
		}
		ticker := time.NewTicker(streamKeepAlive)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-ch:
				if !ok {
					return
				}
				if err := send(sse.Message{ID: int(n.EventID), Data: n}); err != nil {
					return
				}
			case t := <-ticker.C:
				if err := send.Data(StreamPing{TS: t.UTC().Format(time.RFC3339)}); err != nil {
					return
				}
			}
		}
	})
}
