package sink

import (
	"encoding/base64"
	"encoding/json"
	"sync"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/internal/logger"
)

// Event holds one point pre-serialized in both stream formats, so that fanout to
// many clients serializes once.
type Event struct {
	JSON     []byte // JSON object
	Protobuf []byte // Base64 of the Message wire encoding
}

// Broadcaster fans points out to live stream subscribers. Slow subscribers miss
// points instead of blocking the frame loop.
type Broadcaster struct {
	j joiner

	mu      sync.Mutex
	clients map[int]chan *Event
	nextID  int
	session string
	seq     uint64
	closed  bool
}

// NewBroadcaster creates a broadcaster for session
func NewBroadcaster(session string) *Broadcaster {
	return &Broadcaster{
		clients: make(map[int]chan *Event),
		session: session,
	}
}

// Subscribe adds a client and returns its event channel
func (b *Broadcaster) Subscribe() (int, <-chan *Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan *Event, 8)
	if b.closed {
		close(ch)
		return id, ch
	}
	b.clients[id] = ch

	logger.Debug("Broadcaster", "Client #%d subscribed (total clients: %d)", id, len(b.clients))
	return id, ch
}

// Unsubscribe removes a client and closes its channel
func (b *Broadcaster) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.clients[id]; ok {
		close(ch)
		delete(b.clients, id)
		logger.Debug("Broadcaster", "Client #%d unsubscribed (remaining clients: %d)", id, len(b.clients))
	}
}

// ClientCount returns the number of subscribers
func (b *Broadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// SetSession switches the session id and restarts the sequence
func (b *Broadcaster) SetSession(session string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.session = session
	b.seq = 0
}

func (b *Broadcaster) PushSample(value, ts float64) error {
	b.j.sample(value, ts)
	return nil
}

func (b *Broadcaster) PushConfidence(value, ts float64) error {
	p := b.j.confidence(value, ts)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.seq++
	// Skip serialization when nobody listens
	if len(b.clients) == 0 {
		return nil
	}

	jsonData, err := json.Marshal(p)
	if err != nil {
		return err
	}
	msg := Message{Session: b.session, Seq: b.seq, Timestamp: p.Timestamp, Value: p.Value, Confidence: p.Confidence}
	ev := &Event{
		JSON:     jsonData,
		Protobuf: []byte(base64.StdEncoding.EncodeToString(msg.Marshal())),
	}

	for _, ch := range b.clients {
		select {
		case ch <- ev:
		default:
			// Client too slow, skip this point for it
		}
	}
	return nil
}

// Close disconnects every subscriber
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for id, ch := range b.clients {
		close(ch)
		delete(b.clients, id)
	}
	return nil
}
