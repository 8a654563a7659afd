package transcription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBytesPerSecond = 16000 * 1 * 2

func newTestBuffer(maxSeconds float64) *Buffer {
	return NewBuffer(maxSeconds, 16000, 1, 2)
}

func pcm(seconds float64) []byte {
	return make([]byte, int(seconds*testBytesPerSecond))
}

func TestBufferEstimatesDurationFromBytes(t *testing.T) {
	b := newTestBuffer(30)
	b.Append(Segment{Data: pcm(1), MimeType: "audio/wav"})
	assert.InDelta(t, 1.0, b.Duration(), 0.001)

	b.Append(Segment{Data: pcm(0.5), MimeType: "audio/wav"})
	assert.InDelta(t, 1.5, b.Duration(), 0.001)
	assert.Equal(t, 2, b.Len())
}

func TestBufferKeepsExplicitDuration(t *testing.T) {
	b := newTestBuffer(30)
	b.Append(Segment{Data: []byte{1, 2, 3}, Duration: 2.5})
	assert.InDelta(t, 2.5, b.Duration(), 0.001)
}

func TestBufferDrainBelowThreshold(t *testing.T) {
	b := newTestBuffer(30)
	b.Append(Segment{Data: pcm(0.5), MimeType: "audio/wav"})

	data, mime, ok := b.DrainIfReady(1)
	assert.False(t, ok)
	assert.Nil(t, data)
	assert.Empty(t, mime)
	assert.Equal(t, 1, b.Len(), "failed drain must not clear the buffer")
}

func TestBufferDrainCombinesSegments(t *testing.T) {
	b := newTestBuffer(30)
	b.Append(Segment{Data: pcm(1), MimeType: "audio/webm"})
	b.Append(Segment{Data: pcm(1), MimeType: "audio/wav"})

	data, mime, ok := b.DrainIfReady(1)
	require.True(t, ok)
	assert.Len(t, data, 2*testBytesPerSecond)
	assert.Equal(t, "audio/webm", mime, "mime type comes from the earliest segment")
	assert.Equal(t, 0, b.Len())
	assert.Zero(t, b.Duration())
}

func TestBufferDrainEmpty(t *testing.T) {
	b := newTestBuffer(30)
	_, _, ok := b.DrainIfReady(0)
	assert.False(t, ok)
}

func TestBufferEvictsByAge(t *testing.T) {
	b := newTestBuffer(10)
	now := time.Now()
	b.now = func() time.Time { return now }

	b.Append(Segment{Data: pcm(1), CapturedAt: now.Add(-time.Minute)})
	b.Append(Segment{Data: pcm(1), CapturedAt: now.Add(-time.Second)})

	assert.Equal(t, 1, b.Len(), "segments past the retention window are evicted")
	assert.InDelta(t, 1.0, b.Duration(), 0.001)
}

func TestBufferCapsTotalDuration(t *testing.T) {
	b := newTestBuffer(5)
	now := time.Now()
	b.now = func() time.Time { return now }

	for i := 0; i < 10; i++ {
		b.Append(Segment{Data: pcm(1), CapturedAt: now})
	}

	assert.LessOrEqual(t, b.Duration(), 5.0)
	assert.GreaterOrEqual(t, b.Len(), 1, "the newest segment always survives eviction")
}

func TestBufferRestorePrecedesLaterAppends(t *testing.T) {
	b := newTestBuffer(30)
	b.Append(Segment{Data: pcm(2), MimeType: "audio/wav"})
	data, mime, ok := b.DrainIfReady(1)
	require.True(t, ok)

	b.Restore(data, mime)
	assert.InDelta(t, 2.0, b.Duration(), 0.001)

	b.Append(Segment{Data: pcm(1), MimeType: "audio/webm"})

	again, mime2, ok := b.DrainIfReady(1)
	require.True(t, ok)
	assert.Equal(t, "audio/wav", mime2, "restored audio sits in front of later appends")
	assert.Len(t, again, 3*testBytesPerSecond)
	assert.Equal(t, data, again[:len(data)])
}

func TestBufferRestoreRespectsCap(t *testing.T) {
	b := newTestBuffer(5)
	b.Append(Segment{Data: pcm(4), MimeType: "audio/wav"})
	data, mime, ok := b.DrainIfReady(1)
	require.True(t, ok)

	b.Append(Segment{Data: pcm(4), MimeType: "audio/wav"})
	b.Restore(data, mime)

	// Restored audio counts against the cap and is evicted first.
	assert.LessOrEqual(t, b.Duration(), 5.0)
	assert.InDelta(t, 4.0, b.Duration(), 0.001)

	b.Restore(nil, "audio/wav")
	assert.Equal(t, 1, b.Len(), "restoring nothing is a no-op")
}

func TestBufferSingleOversizedSegmentSurvives(t *testing.T) {
	b := newTestBuffer(5)
	b.Append(Segment{Data: pcm(8)})

	// One segment larger than the cap stays; eviction never empties the buffer.
	assert.Equal(t, 1, b.Len())

	data, _, ok := b.DrainIfReady(1)
	require.True(t, ok)
	assert.Len(t, data, 8*testBytesPerSecond)
}
