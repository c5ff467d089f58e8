// internal/app/features/follows/stream.go
package follows

import (
	"net/http"
	"time"

	"github.com/dalemusser/alerthub/internal/app/followcache"
	"github.com/dalemusser/alerthub/internal/app/subscriptions"
	"github.com/dalemusser/alerthub/internal/app/system/limits"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

// streamEvent is one cache change as sent to the client. Versions are
// ordered per kind.
type streamEvent struct {
	Kind    subscriptions.ChangeKind `json:"kind"`
	OrgID   primitive.ObjectID       `json:"org_id"`
	GroupID *primitive.ObjectID      `json:"group_id,omitempty"`
	Value   bool                     `json:"value"`
	Present bool                     `json:"present"`
	Version uint64                   `json:"version"`
}

func followEvent(ev followcache.Event[followcache.FollowKey]) streamEvent {
	return streamEvent{
		Kind:    subscriptions.ChangeFollow,
		OrgID:   ev.Key.OrgID,
		Value:   ev.Value,
		Present: ev.Present,
		Version: ev.Version,
	}
}

func preferenceEvent(ev followcache.Event[followcache.PreferenceKey]) streamEvent {
	gid := ev.Key.GroupID
	return streamEvent{
		Kind:    subscriptions.ChangePreference,
		OrgID:   ev.Key.OrgID,
		GroupID: &gid,
		Value:   ev.Value,
		Present: ev.Present,
		Version: ev.Version,
	}
}

// ServeStream handles GET /follows/stream. It upgrades to a WebSocket and
// pushes every change to the caller's follow and preference state, optimistic
// writes and reverts included, until the client goes away.
func (h *Handler) ServeStream(w http.ResponseWriter, r *http.Request) {
	uid := h.userID(r)

	// Subscribe before upgrading so no change after the handshake is missed.
	follows := h.Subs.FollowCache().Subscribe()
	defer follows.Close()
	prefs := h.Subs.PreferenceCache().Subscribe()
	defer prefs.Close()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.Log.Debug("change stream upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	log := h.Log.With(
		zap.String("subscriber_id", uuid.NewString()),
		zap.String("user_id", uid.Hex()))

	readWait := 2 * h.pingInterval
	conn.SetReadLimit(limits.MaxStreamMessage)
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})

	// The client sends nothing meaningful; reading drives pongs and close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(h.pingInterval)
	defer ping.Stop()

	log.Info("change stream opened")
	defer log.Info("change stream closed")

	send := func(ev streamEvent) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(ev); err != nil {
			log.Debug("change stream write failed", zap.Error(err))
			return false
		}
		return true
	}

	for {
		select {
		case <-gone:
			return
		case ev, ok := <-follows.C:
			if !ok {
				return
			}
			if ev.Key.UserID == uid && !send(followEvent(ev)) {
				return
			}
		case ev, ok := <-prefs.C:
			if !ok {
				return
			}
			if ev.Key.UserID == uid && !send(preferenceEvent(ev)) {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
