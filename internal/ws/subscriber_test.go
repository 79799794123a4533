package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"chat-backend/internal/models"
)

// dialTestSubscriber runs a real connection through both pumps so wire
// writes race the way they do in production.
func dialTestSubscriber(t *testing.T, hub *Hub, userID int64) *websocket.Conn {
	t.Helper()
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sub := newSubscriber(hub, conn, ConnInfo{ConnID: "test", UserID: userID})
		hub.Register(sub)
		go sub.writePump()
		go sub.readPump(func(string) {})
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func readJSON(t *testing.T, client *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, client.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, raw, err := client.ReadMessage()
	require.NoError(t, err)
	var msg map[string]any
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

func TestSubscribeAckOverWire(t *testing.T) {
	hub := newTestHub(map[int64][]int64{1: {10}})
	client := dialTestSubscriber(t, hub, 10)

	require.NoError(t, client.WriteJSON(Frame{Action: "subscribe", ChatID: 1}))
	msg := readJSON(t, client)
	require.Equal(t, "subscribed", msg["type"])

	hub.Publish(context.Background(), models.Event{Type: models.EventMessageCreated, ChatID: 1, MessageID: 7})
	msg = readJSON(t, client)
	require.Equal(t, models.EventMessageCreated, msg["type"])
}

// Acks triggered by the read pump and events fanned out by the hub must
// not collide on the connection; gorilla permits one writer at a time.
func TestConcurrentAcksAndEventsSingleWriter(t *testing.T) {
	const events = 50
	const badFrames = 100

	hub := newTestHub(map[int64][]int64{1: {10}})
	client := dialTestSubscriber(t, hub, 10)

	require.NoError(t, client.WriteJSON(Frame{Action: "subscribe", ChatID: 1}))
	msg := readJSON(t, client)
	require.Equal(t, "subscribed", msg["type"])

	// Malformed frames elicit error acks from the read pump while the
	// hub floods events through the write pump.
	go func() {
		for i := 0; i < badFrames; i++ {
			if err := client.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
				return
			}
		}
	}()
	for i := int64(1); i <= events; i++ {
		hub.Publish(context.Background(), models.Event{Type: models.EventMessageCreated, ChatID: 1, MessageID: i})
	}

	seenEvents := 0
	seenAcks := 0
	var lastID int64
	for seenEvents < events || seenAcks == 0 {
		msg := readJSON(t, client)
		switch msg["type"] {
		case models.EventMessageCreated:
			seenEvents++
			id := int64(msg["message_id"].(float64))
			require.Greater(t, id, lastID, "event order must survive interleaved acks")
			lastID = id
		case "error":
			seenAcks++
		default:
			t.Fatalf("unexpected message type %v", msg["type"])
		}
	}
	require.Equal(t, events, seenEvents)
	require.Positive(t, seenAcks)
}
