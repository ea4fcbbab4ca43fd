// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/plenum-io/plenum/event"
)

// eventPayload is the wire shape of one streamed event.
type eventPayload struct {
	Type      event.EventType `json:"type"`
	RoomID    string          `json:"room_id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   any             `json:"payload,omitempty"`
}

// handleRoomEvents streams a room's broadcast events over server-sent
// events. The subscription lives only as long as the connection; there
// is no replay of missed events.
func (a *Api) handleRoomEvents(w http.ResponseWriter, r *http.Request) {
	const route = "room_events"
	if a.config.Bus == nil {
		a.writeErr(w, route, fmt.Errorf("event streaming is not enabled"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		a.countRequest(route, http.StatusInternalServerError)
		http.Error(
			w,
			"streaming unsupported",
			http.StatusInternalServerError,
		)
		return
	}
	roomID := r.PathValue("roomId")
	subID, events := a.config.Bus.Subscribe(roomID)
	defer a.config.Bus.Unsubscribe(roomID, subID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	a.countRequest(route, http.StatusOK)

	// Initial hello so clients can confirm the stream is live
	writeSSE(w, eventPayload{
		Type:      event.EventTypeConnection,
		RoomID:    roomID,
		Timestamp: time.Now().UTC(),
		Payload:   map[string]string{"status": "connected"},
	})
	flusher.Flush()

	// Periodic keepalive comments hold idle connections open through
	// proxies
	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case evt, ok := <-events:
			if !ok {
				return
			}
			writeSSE(w, eventPayload{
				Type:      evt.Type,
				RoomID:    evt.RoomID,
				Timestamp: evt.Timestamp,
				Payload:   evt.Payload,
			})
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, payload eventPayload) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", payload.Type, data)
}
