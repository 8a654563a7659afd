package capture

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryListOrderAndFiltering(t *testing.T) {
	r := NewRegistry([]string{"desktop", "microphone", "webcam"})
	list := r.List()
	require.Len(t, list, 2, "unknown kinds are ignored")
	assert.Equal(t, KindMicrophone, list[0].Kind)
	assert.Equal(t, KindDesktop, list[1].Kind)
}

func TestRegistryOpenUnknown(t *testing.T) {
	r := NewRegistry([]string{"microphone"})
	_, err := r.Open("desktop")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestPushSourceDeliversSegments(t *testing.T) {
	r := NewRegistry([]string{"microphone"})
	src, err := r.Open("microphone")
	require.NoError(t, err)

	stream, err := src.Start(context.Background())
	require.NoError(t, err)

	src.Push([]byte("chunk"), "audio/wav")
	select {
	case seg := <-stream:
		assert.Equal(t, []byte("chunk"), seg.Data)
		assert.Equal(t, "audio/wav", seg.MimeType)
		assert.False(t, seg.CapturedAt.IsZero())
	case <-time.After(time.Second):
		t.Fatal("no segment received")
	}
}

func TestPushSourceStartTwiceFails(t *testing.T) {
	src := NewPushSource(Info{ID: "microphone"})
	_, err := src.Start(context.Background())
	require.NoError(t, err)
	_, err = src.Start(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestPushSourceStopClosesStream(t *testing.T) {
	src := NewPushSource(Info{ID: "microphone"})
	stream, err := src.Start(context.Background())
	require.NoError(t, err)

	src.Stop()
	src.Stop() // idempotent

	_, open := <-stream
	assert.False(t, open)

	// Pushes after stop are dropped, not panicking on a closed channel.
	src.Push([]byte("late"), "audio/wav")
}

func TestPushSourceStopsWithContext(t *testing.T) {
	src := NewPushSource(Info{ID: "microphone"})
	ctx, cancel := context.WithCancel(context.Background())
	stream, err := src.Start(ctx)
	require.NoError(t, err)

	cancel()
	select {
	case _, open := <-stream:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("stream not closed after context cancel")
	}
}

// Pushes racing Stop must never hit the closed channel. Run with -race.
func TestPushSourceConcurrentPushAndStop(t *testing.T) {
	src := NewPushSource(Info{ID: "microphone"})
	stream, err := src.Start(context.Background())
	require.NoError(t, err)

	go func() {
		for range stream { // keep the stream draining until Stop closes it
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				src.Push([]byte{byte(j)}, "audio/wav")
			}
		}()
	}
	src.Stop()
	wg.Wait()
}

func TestPushSourceDropsWhenBackedUp(t *testing.T) {
	src := NewPushSource(Info{ID: "microphone"})
	_, err := src.Start(context.Background())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ { // more than the channel buffer
			src.Push([]byte{byte(i)}, "audio/wav")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("push blocked on a full stream")
	}
}
