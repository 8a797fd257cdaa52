package sensor

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

var ErrUnknownEvent = errors.New("unknown sensor event type")

// StreamMessage is one device event as sent by a client over the sensor stream.
type StreamMessage struct {
	Type string `json:"type"` // "motion" or "orientation"
	Motion
	Orientation
}

// StreamSource is a Source fed by decoded client messages. A session owns one and
// the transport pushes frames into it with Dispatch.
type StreamSource struct {
	mu       sync.Mutex
	handlers map[int]Handler
	next     int
}

// NewStreamSource creates a source with no handlers.
func NewStreamSource() *StreamSource {
	return &StreamSource{handlers: make(map[int]Handler)}
}

// Attach registers h and returns the function that removes it.
func (s *StreamSource) Attach(h Handler) func() {
	s.mu.Lock()
	id := s.next
	s.next++
	s.handlers[id] = h
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.handlers, id)
			s.mu.Unlock()
		})
	}
}

// Attached returns the number of registered handlers.
func (s *StreamSource) Attached() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}

// Dispatch decodes a raw frame and delivers it to every attached handler.
func (s *StreamSource) Dispatch(frame []byte) error {
	var msg StreamMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		return fmt.Errorf("failed to decode sensor frame: %w", err)
	}
	return s.Deliver(msg)
}

// Deliver sends an already decoded message to every attached handler.
func (s *StreamSource) Deliver(msg StreamMessage) error {
	s.mu.Lock()
	handlers := make([]Handler, 0, len(s.handlers))
	for _, h := range s.handlers {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	switch msg.Type {
	case "motion":
		for _, h := range handlers {
			h.HandleMotion(msg.Motion)
		}
	case "orientation":
		for _, h := range handlers {
			h.HandleOrientation(msg.Orientation)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, msg.Type)
	}
	return nil
}
