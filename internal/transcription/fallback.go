package transcription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// LocalBackend is the degraded local transcription path used when the real
// backend cannot authenticate. It produces a placeholder result so the
// session keeps progressing instead of failing.
type LocalBackend struct {
	bytesPerSecond int
}

// NewLocalBackend creates the fallback backend. bytesPerSecond is the PCM
// rate used to estimate the spoken duration from the blob size.
func NewLocalBackend(bytesPerSecond int) *LocalBackend {
	if bytesPerSecond <= 0 {
		bytesPerSecond = 16000 * 2
	}
	return &LocalBackend{bytesPerSecond: bytesPerSecond}
}

// Transcribe returns a low-fidelity placeholder for the drained audio.
func (b *LocalBackend) Transcribe(_ context.Context, audio []byte, _ string) (*Result, error) {
	seconds := float64(len(audio)) / float64(b.bytesPerSecond)
	return &Result{
		Text:        fmt.Sprintf("[offline transcription, %.1fs of audio]", seconds),
		Confidence:  0.3,
		TimestampMS: time.Now().UnixMilli(),
	}, nil
}

// Policy governs behavior when the transcription backend fails.
//
// Credentials failures are substituted with the local backend so the session
// degrades instead of failing. Every other failure is returned to the caller
// to be recorded on the session; the tick is skipped and the next tick
// retries with newly accumulated audio plus the undrained leftover. No
// failure terminates the session.
type Policy struct {
	local  Backend
	logger *zap.Logger
}

// NewPolicy creates a fallback policy around the local backend.
func NewPolicy(local Backend, logger *zap.Logger) *Policy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Policy{local: local, logger: logger}
}

// Resolve maps a backend failure to either a substitute result or a
// non-fatal error to record.
func (p *Policy) Resolve(ctx context.Context, audio []byte, mimeType string, cause error) (*Result, error) {
	var be *BackendError
	if errors.As(cause, &be) && be.Kind == ErrorCredentials && p.local != nil {
		p.logger.Warn("transcription backend credentials rejected, using local fallback", zap.Error(cause))
		return p.local.Transcribe(ctx, audio, mimeType)
	}
	return nil, cause
}
