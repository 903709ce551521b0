package webd

import (
	"encoding/json"

	"github.com/olahol/melody"
	"github.com/rotblauer/stravad/events"
	"github.com/rotblauer/stravad/types/activity"
)

type websocketAction string

var websocketActionStored websocketAction = "stored"

type broadcastActivities struct {
	Action     websocketAction  `json:"action"`
	Activities []map[string]any `json:"activities"`
}

// initMelody sets up the websocket handler and broadcasts
// every stored activity to all connected clients.
func (s *WebDaemon) initMelody() {
	s.melodyInstance = melody.New()

	s.melodyInstance.HandleConnect(func(sess *melody.Session) {
		s.logger.Info("Websocket connected", "remote", sess.Request.RemoteAddr)
	})

	// Clients have nothing to say. Log and drop.
	s.melodyInstance.HandleMessage(func(sess *melody.Session, msg []byte) {
		s.logger.Debug("Websocket message", "remote", sess.Request.RemoteAddr, "msg", string(msg))
	})

	s.melodyInstance.HandleDisconnect(func(sess *melody.Session) {
		s.logger.Info("Websocket disconnected", "remote", sess.Request.RemoteAddr)
	})

	s.melodyInstance.HandleError(func(sess *melody.Session, e error) {
		s.logger.Warn("Websocket error", "remote", sess.Request.RemoteAddr, "error", e)
	})

	// The feed blocks senders until every subscriber receives,
	// so this loop must keep draining until the daemon quits.
	stored := make(chan activity.Record)
	sub := events.StoredActivityFeed.Subscribe(stored)
	go func() {
		defer sub.Unsubscribe()
		for {
			select {
			case rec := <-stored:
				b, err := json.Marshal(broadcastActivities{
					Action:     websocketActionStored,
					Activities: []map[string]any{activityJSON(rec)},
				})
				if err != nil {
					s.logger.Error("Failed to marshal stored event", "error", err)
					continue
				}
				if s.melodyInstance.IsClosed() {
					continue
				}
				if err := s.melodyInstance.Broadcast(b); err != nil {
					s.logger.Warn("Failed to broadcast stored event", "error", err)
				}
			case err := <-sub.Err():
				if err != nil {
					s.logger.Error("Stored activity subscription failed", "error", err)
				}
				return
			case <-s.quit:
				return
			}
		}
	}()
}
