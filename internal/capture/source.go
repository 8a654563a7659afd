// Package capture models the audio capture boundary: enumerable sources
// that yield a stream of timestamped audio segments.
package capture

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrUnavailable is returned when a capture source cannot be opened.
var ErrUnavailable = errors.New("capture source unavailable")

// Kind identifies the capture source variant.
type Kind string

const (
	KindMicrophone Kind = "microphone"
	KindDesktop    Kind = "desktop"
	KindMixed      Kind = "mixed"
)

// Info describes one addressable capture source.
type Info struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// Segment is one captured audio chunk.
type Segment struct {
	Data       []byte
	MimeType   string
	CapturedAt time.Time
}

// Source yields audio segments once started. Stop is idempotent.
type Source interface {
	Info() Info
	Start(ctx context.Context) (<-chan Segment, error)
	Stop()
}

// Registry enumerates the capture sources the server offers.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Info
}

// NewRegistry creates a registry with the configured source kinds.
// Unknown kind names are ignored.
func NewRegistry(kinds []string) *Registry {
	r := &Registry{sources: make(map[string]Info)}
	for _, k := range kinds {
		switch Kind(k) {
		case KindMicrophone:
			r.sources[string(KindMicrophone)] = Info{ID: string(KindMicrophone), Name: "Microphone", Kind: KindMicrophone}
		case KindDesktop:
			r.sources[string(KindDesktop)] = Info{ID: string(KindDesktop), Name: "Desktop audio", Kind: KindDesktop}
		case KindMixed:
			r.sources[string(KindMixed)] = Info{ID: string(KindMixed), Name: "Microphone + desktop", Kind: KindMixed}
		}
	}
	return r
}

// List returns the available sources.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.sources))
	for _, kind := range []Kind{KindMicrophone, KindDesktop, KindMixed} {
		if info, ok := r.sources[string(kind)]; ok {
			out = append(out, info)
		}
	}
	return out
}

// Open creates a push source for the given source ID. Returns ErrUnavailable
// for unknown IDs.
func (r *Registry) Open(id string) (*PushSource, error) {
	r.mu.RLock()
	info, ok := r.sources[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrUnavailable
	}
	return NewPushSource(info), nil
}

// PushSource is a capture source fed externally: the client captures audio
// on its side and pushes encoded chunks over the live transport.
type PushSource struct {
	info Info

	mu      sync.Mutex
	ch      chan Segment
	started bool
	stopped bool
}

// NewPushSource creates an externally fed source.
func NewPushSource(info Info) *PushSource {
	return &PushSource{info: info, ch: make(chan Segment, 64)}
}

// Info returns the source descriptor.
func (p *PushSource) Info() Info { return p.info }

// Start returns the segment stream. Starting twice fails.
func (p *PushSource) Start(ctx context.Context) (<-chan Segment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return nil, ErrUnavailable
	}
	p.started = true
	go func() {
		<-ctx.Done()
		p.Stop()
	}()
	return p.ch, nil
}

// Push feeds one captured chunk. Chunks pushed after Stop, or while the
// stream is backed up, are dropped.
func (p *PushSource) Push(data []byte, mimeType string) {
	seg := Segment{Data: data, MimeType: mimeType, CapturedAt: time.Now()}
	// Stop closes the channel, so the send must stay under the mutex. The
	// send never blocks.
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	select {
	case p.ch <- seg:
	default:
	}
}

// Stop closes the segment stream. Idempotent.
func (p *PushSource) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.stopped = true
	close(p.ch)
}
