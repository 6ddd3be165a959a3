// Package sink defines the fire-and-forget telemetry capability the broker
// emits lifecycle notices into. Implementations must never block the caller
// or panic back into it; transport and schema are the sink's own concern.
package sink

import (
	"io"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/logs"
)

// Emitted event names.
const (
	EventOrderSubmitted = "order_submitted"
	EventOrderRejected  = "order_rejected"
	EventOrderFill      = "order_fill"
	EventCash           = "cash"
	EventHoldings       = "holdings"
	EventEquity         = "equity"
)

// Sink consumes structured notices for observability purposes only.
type Sink interface {
	Emit(event string, payload any)
}

// Nop discards every notice.
type Nop struct{}

func (Nop) Emit(string, any) {}

// Log writes notices through the process logger.
type Log struct{}

func (Log) Emit(event string, payload any) {
	data, err := sonic.ConfigFastest.Marshal(payload)
	if err != nil {
		logs.Warnf("sink: marshal %s, err: %+v", event, err)
		return
	}
	logs.Infof("%s %s", event, data)
}

type envelope struct {
	Event   string `json:"event"`
	At      int64  `json:"at"`
	Payload any    `json:"payload"`
}

// Writer appends notices as JSON lines to an io.Writer. Marshal or write
// failures are logged and dropped, never surfaced to the caller.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter creates a JSON-lines sink.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (s *Writer) Emit(event string, payload any) {
	data, err := sonic.ConfigFastest.Marshal(envelope{
		Event:   event,
		At:      time.Now().UTC().UnixNano(),
		Payload: payload,
	})
	if err != nil {
		logs.Warnf("sink: marshal %s, err: %+v", event, err)
		return
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(data); err != nil {
		logs.Warnf("sink: write %s, err: %+v", event, err)
	}
}
