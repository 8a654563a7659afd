package transcription

import (
	"sync"
	"time"
)

// Segment is one captured chunk of audio. Transient: segments live only in
// the buffer and are never persisted, only their transcription result is.
type Segment struct {
	Data       []byte
	MimeType   string
	CapturedAt time.Time
	// Duration in seconds. When zero it is estimated from the byte size at
	// append time.
	Duration float64
}

// Buffer accumulates timestamped audio segments for one capture session.
//
// Durations are approximated from byte size as
// bytes / (sampleRate * channels * bytesPerSample); no decoding is done, so
// the estimate is only meaningful for uncompressed PCM-like payloads. The
// same approximation is used for the drain threshold, keeping the two
// consistent.
type Buffer struct {
	mu             sync.Mutex
	segments       []Segment
	maxSeconds     float64
	bytesPerSecond int
	now            func() time.Time
}

// NewBuffer creates an audio buffer. maxSeconds caps the retained audio:
// older segments are evicted on append. This is a memory bound, not a
// correctness mechanism; very slow transcription cycles lose audio rather
// than grow unbounded. Segments are evicted whole, and the newest segment is
// never evicted, so a single segment longer than maxSeconds is kept intact.
func NewBuffer(maxSeconds float64, sampleRate, channels, bytesPerSample int) *Buffer {
	bps := sampleRate * channels * bytesPerSample
	if bps <= 0 {
		bps = 16000 * 2
	}
	return &Buffer{
		maxSeconds:     maxSeconds,
		bytesPerSecond: bps,
		now:            time.Now,
	}
}

// Append adds a segment, evicting segments older than the retention cap.
func (b *Buffer) Append(seg Segment) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if seg.CapturedAt.IsZero() {
		seg.CapturedAt = now
	}
	if seg.Duration == 0 {
		seg.Duration = float64(len(seg.Data)) / float64(b.bytesPerSecond)
	}
	b.segments = append(b.segments, seg)

	cutoff := now.Add(-time.Duration(b.maxSeconds * float64(time.Second)))
	i := 0
	for i < len(b.segments) && b.segments[i].CapturedAt.Before(cutoff) {
		i++
	}
	b.segments = b.segments[i:]

	// Keep the summed duration under the cap even when all segments are recent.
	total := 0.0
	for _, s := range b.segments {
		total += s.Duration
	}
	for len(b.segments) > 1 && total > b.maxSeconds {
		total -= b.segments[0].Duration
		b.segments = b.segments[1:]
	}
}

// Restore puts drained audio back at the front of the buffer, ahead of any
// segments appended since the drain, so a failed transcription attempt can be
// retried with the same audio. The retention cap still applies; restored
// audio is the oldest and is evicted first when the cap is exceeded.
func (b *Buffer) Restore(data []byte, mimeType string) {
	if len(data) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	seg := Segment{
		Data:       data,
		MimeType:   mimeType,
		CapturedAt: b.now(),
		Duration:   float64(len(data)) / float64(b.bytesPerSecond),
	}
	b.segments = append([]Segment{seg}, b.segments...)

	total := 0.0
	for _, s := range b.segments {
		total += s.Duration
	}
	for len(b.segments) > 1 && total > b.maxSeconds {
		total -= b.segments[0].Duration
		b.segments = b.segments[1:]
	}
}

// DrainIfReady returns the combined audio and the earliest segment's MIME
// type when at least minSeconds of audio has accumulated, clearing the
// buffer. Otherwise it returns ok=false and leaves the buffer untouched.
func (b *Buffer) DrainIfReady(minSeconds float64) (data []byte, mimeType string, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.segments) == 0 {
		return nil, "", false
	}
	total := 0.0
	size := 0
	for _, s := range b.segments {
		total += s.Duration
		size += len(s.Data)
	}
	if total < minSeconds {
		return nil, "", false
	}

	combined := make([]byte, 0, size)
	for _, s := range b.segments {
		combined = append(combined, s.Data...)
	}
	mimeType = b.segments[0].MimeType
	b.segments = nil
	return combined, mimeType, true
}

// Duration returns the summed duration of buffered audio in seconds.
func (b *Buffer) Duration() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := 0.0
	for _, s := range b.segments {
		total += s.Duration
	}
	return total
}

// Len returns the number of buffered segments.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.segments)
}
