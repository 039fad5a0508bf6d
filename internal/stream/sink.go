package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/david/campsite-finder/internal/search"
)

// Sink delivers events to one consumer. A Send error means the consumer
// is gone.
type Sink interface {
	Send(search.Event) error
}

// Frame renders one Server-Sent Events frame.
func Frame(e search.Event) ([]byte, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", e.Type, err)
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", e.Type, data)), nil
}

// SSEWriter writes text/event-stream frames, flushing after each one.
type SSEWriter struct {
	w       io.Writer
	flusher http.Flusher
}

func NewSSEWriter(w io.Writer) *SSEWriter {
	s := &SSEWriter{w: w}
	if f, ok := w.(http.Flusher); ok {
		s.flusher = f
	}
	return s
}

// PrepareSSE sets the streaming response headers.
func PrepareSSE(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

func (s *SSEWriter) Send(e search.Event) error {
	frame, err := Frame(e)
	if err != nil {
		return err
	}
	if _, err := s.w.Write(frame); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

const wsWriteWait = 10 * time.Second

// wsFrame is the WebSocket rendering of an event.
type wsFrame struct {
	Event search.EventType `json:"event"`
	Data  any              `json:"data"`
}

// WSWriter writes events as JSON text frames.
type WSWriter struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func NewWSWriter(conn *websocket.Conn) *WSWriter {
	return &WSWriter{conn: conn}
}

func (w *WSWriter) Send(e search.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.conn.WriteJSON(wsFrame{Event: e.Type, Data: e.Data})
}

// Close sends a normal close frame.
func (w *WSWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// WatchClose keeps reading the connection so close frames are processed and
// returns a context that ends when the peer goes away.
func (w *WSWriter) WatchClose(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		defer cancel()
		for {
			if _, _, err := w.conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("[Stream] websocket read error: %v", err)
				}
				return
			}
		}
	}()
	return ctx, cancel
}
