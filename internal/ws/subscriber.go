package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"chat-backend/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxFrameSize = 1024

	// Outbound buffer per subscriber; a full buffer marks the
	// subscriber as slow and disconnects it.
	sendBufferSize = 64

	// Control acks share the write pump with events but skip the event
	// buffer so a backlog cannot starve subscribe replies.
	ctrlBufferSize = 16
)

// ConnInfo carries identity and correlation data for a subscriber
// connection, used in lifecycle events.
type ConnInfo struct {
	ConnID      string
	UserID      int64
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// Subscriber is one websocket connection registered with the hub. Events
// flow through the buffered send channel so a stalled peer never blocks
// the fan-out.
type Subscriber struct {
	info ConnInfo
	hub  *Hub
	conn *websocket.Conn
	send chan models.Event
	ctrl chan ack

	closeOnce sync.Once
}

// Frame is a client-to-server control message.
type Frame struct {
	Action string `json:"action"`
	ChatID int64  `json:"chat_id"`
}

// ack is the server's reply to a control frame.
type ack struct {
	Type   string `json:"type"`
	ChatID int64  `json:"chat_id,omitempty"`
	Error  string `json:"error,omitempty"`
}

func newSubscriber(hub *Hub, conn *websocket.Conn, info ConnInfo) *Subscriber {
	return &Subscriber{
		info: info,
		hub:  hub,
		conn: conn,
		send: make(chan models.Event, sendBufferSize),
		ctrl: make(chan ack, ctrlBufferSize),
	}
}

// close shuts the send channel exactly once, which terminates the write
// pump and with it the connection.
func (s *Subscriber) close() {
	s.closeOnce.Do(func() {
		close(s.send)
	})
}

// writeAck queues a control ack for the write pump, which is the only
// goroutine allowed to touch the wire. A full control buffer drops the
// ack; the client's pending frame times out and it retries.
func (s *Subscriber) writeAck(a ack) {
	select {
	case s.ctrl <- a:
	default:
		log.Debug().Str("conn_id", s.info.ConnID).Msg("control buffer full, ack dropped")
	}
}

// readPump consumes control frames until the peer goes away. Subscribing
// requires read access to the chat at subscribe time.
func (s *Subscriber) readPump(onClose func(reason string)) {
	var closeReason string
	defer func() {
		s.hub.Unregister(s)
		s.conn.Close()
		onClose(closeReason)
	}()

	s.conn.SetReadLimit(maxFrameSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			return
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.writeAck(ack{Type: "error", Error: "malformed frame"})
			continue
		}
		s.hub.handleFrame(s, frame)
	}
}

// writePump drains the send channel onto the wire, pinging the peer on an
// interval. It exits when the hub closes the channel or a write fails.
func (s *Subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case event, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				log.Error().Err(err).Msg("event marshal failed")
				continue
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Debug().Err(err).Str("conn_id", s.info.ConnID).Msg("websocket write failed")
				return
			}
		case a := <-s.ctrl:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			payload, _ := json.Marshal(a)
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Debug().Err(err).Str("conn_id", s.info.ConnID).Msg("websocket ack write failed")
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
