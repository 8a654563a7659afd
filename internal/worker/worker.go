package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lecturehall/backend/internal/transcription"
	"github.com/lecturehall/backend/pkg/queue"
	"github.com/lecturehall/backend/pkg/storage"
)

// TranscriptExporter processes transcript export jobs: load the finished
// session, upload its text to S3 and record the object key.
type TranscriptExporter struct {
	sessions *transcription.Repository
	s3       *storage.S3
	queue    *queue.Queue
	logger   *zap.Logger
}

// NewTranscriptExporter creates a transcript export processor.
func NewTranscriptExporter(sessions *transcription.Repository, s3 *storage.S3, q *queue.Queue, logger *zap.Logger) *TranscriptExporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TranscriptExporter{sessions: sessions, s3: s3, queue: q, logger: logger}
}

// Process executes one transcript export job.
func (p *TranscriptExporter) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeTranscriptExport {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.TranscriptExportPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	sess, err := p.sessions.GetSessionByID(ctx, payload.SessionID)
	if err != nil {
		return fmt.Errorf("session not found: %s", payload.SessionID)
	}
	if sess.ExportKey != "" {
		p.logger.Info("transcript already exported", zap.String("session_id", sess.ID.String()), zap.String("key", sess.ExportKey))
		return nil
	}
	if sess.Text == "" {
		p.logger.Info("empty transcript, nothing to export", zap.String("session_id", sess.ID.String()))
		return nil
	}

	scope := "private"
	if payload.LectureID != nil {
		scope = payload.LectureID.String()
	}
	key := storage.TranscriptKey(scope, sess.ID.String())

	body := strings.NewReader(sess.Text)
	if _, err := p.s3.Upload(ctx, p.s3.TranscriptsBucket(), key, "text/plain; charset=utf-8", body, int64(len(sess.Text))); err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}

	if err := p.sessions.SetExportKey(ctx, sess.ID, key); err != nil {
		p.logger.Error("record export key failed", zap.Error(err), zap.String("session_id", sess.ID.String()))
		return fmt.Errorf("update db: %w", err)
	}

	p.logger.Info("transcript exported", zap.String("session_id", sess.ID.String()), zap.String("s3_key", key))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *TranscriptExporter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("transcript worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
