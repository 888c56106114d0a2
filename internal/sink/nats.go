package sink

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/internal/logger"
)

// DefaultSubject is the analyzer ingestion subject
const DefaultSubject = "ppg.pulse"

// Connect dials NATS with reconnect settings suitable for a long-running publisher
func Connect(url string) (*nats.Conn, error) {
	return nats.Connect(
		url,
		nats.Name("pulse-extractor"),
		nats.Timeout(3*time.Second),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS", "Disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS", "Reconnected to %s", nc.ConnectedUrl())
		}),
	)
}

// Publisher is the subset of *nats.Conn used by NATS
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Message is one frame on the wire
type Message struct {
	Session    string
	Seq        uint64
	Timestamp  float64
	Value      float64 // NaN when absent
	Confidence float64
}

// Wire field numbers
const (
	fieldSession    protowire.Number = 1
	fieldSeq        protowire.Number = 2
	fieldTimestamp  protowire.Number = 3
	fieldValue      protowire.Number = 4
	fieldConfidence protowire.Number = 5
)

// Marshal encodes m in protobuf wire format. Value is omitted when NaN.
func (m Message) Marshal() []byte {
	b := make([]byte, 0, 48+len(m.Session))
	b = protowire.AppendTag(b, fieldSession, protowire.BytesType)
	b = protowire.AppendString(b, m.Session)
	b = protowire.AppendTag(b, fieldSeq, protowire.VarintType)
	b = protowire.AppendVarint(b, m.Seq)
	b = protowire.AppendTag(b, fieldTimestamp, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(m.Timestamp))
	if !math.IsNaN(m.Value) {
		b = protowire.AppendTag(b, fieldValue, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(m.Value))
	}
	b = protowire.AppendTag(b, fieldConfidence, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(m.Confidence))
	return b
}

// UnmarshalMessage decodes a wire message. Unknown fields are skipped.
func UnmarshalMessage(b []byte) (Message, error) {
	m := Message{Value: math.NaN()}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return m, fmt.Errorf("sink: bad tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldSession && typ == protowire.BytesType:
			var s string
			s, n = protowire.ConsumeString(b)
			m.Session = s
		case num == fieldSeq && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			m.Seq = v
		case typ == protowire.Fixed64Type && (num == fieldTimestamp || num == fieldValue || num == fieldConfidence):
			var v uint64
			v, n = protowire.ConsumeFixed64(b)
			f := math.Float64frombits(v)
			switch num {
			case fieldTimestamp:
				m.Timestamp = f
			case fieldValue:
				m.Value = f
			default:
				m.Confidence = f
			}
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return m, fmt.Errorf("sink: bad field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return m, nil
}

// NATS publishes one Message per frame
type NATS struct {
	j       joiner
	pub     Publisher
	subject string

	mu      sync.Mutex
	session string
	seq     uint64
	closed  bool
}

// NewNATS creates a publisher on subject (DefaultSubject when empty)
func NewNATS(pub Publisher, subject, session string) *NATS {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATS{pub: pub, subject: subject, session: session}
}

// SetSession switches the session id and restarts the sequence
func (n *NATS) SetSession(session string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.session = session
	n.seq = 0
}

func (n *NATS) PushSample(value, ts float64) error {
	n.j.sample(value, ts)
	return nil
}

func (n *NATS) PushConfidence(value, ts float64) error {
	p := n.j.confidence(value, ts)

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrClosed
	}
	n.seq++
	msg := Message{
		Session:    n.session,
		Seq:        n.seq,
		Timestamp:  p.Timestamp,
		Value:      p.Value,
		Confidence: p.Confidence,
	}
	n.mu.Unlock()

	if err := n.pub.Publish(n.subject, msg.Marshal()); err != nil {
		return fmt.Errorf("sink: publish %s: %w", n.subject, err)
	}
	return nil
}

// Close stops publishing and drains the connection when the publisher is a *nats.Conn
func (n *NATS) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.mu.Unlock()

	if nc, ok := n.pub.(*nats.Conn); ok {
		return nc.Drain()
	}
	return nil
}
