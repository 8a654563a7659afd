package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// WhisperBackend calls an OpenAI-compatible /audio/transcriptions endpoint.
type WhisperBackend struct {
	apiURL   string
	apiKey   string
	model    string
	language string
	client   *http.Client
}

// NewWhisperBackend creates the HTTP transcription backend.
func NewWhisperBackend(apiURL, apiKey, model, language string) *WhisperBackend {
	return &WhisperBackend{
		apiURL:   apiURL,
		apiKey:   apiKey,
		model:    model,
		language: language,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

type whisperResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads the audio as multipart form data and returns the text.
func (b *WhisperBackend) Transcribe(ctx context.Context, audio []byte, mimeType string) (*Result, error) {
	if b.apiKey == "" {
		return nil, &BackendError{Kind: ErrorCredentials, Err: fmt.Errorf("api key not configured")}
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "audio"+extensionFor(mimeType))
	if err != nil {
		return nil, &BackendError{Kind: ErrorOther, Err: err}
	}
	if _, err := part.Write(audio); err != nil {
		return nil, &BackendError{Kind: ErrorOther, Err: err}
	}
	_ = mw.WriteField("model", b.model)
	if b.language != "" {
		_ = mw.WriteField("language", b.language)
	}
	if err := mw.Close(); err != nil {
		return nil, &BackendError{Kind: ErrorOther, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.apiURL, &body)
	if err != nil {
		return nil, &BackendError{Kind: ErrorOther, Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, &BackendError{Kind: ErrorTransient, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		cause := fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, &BackendError{Kind: ErrorCredentials, Err: cause}
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return nil, &BackendError{Kind: ErrorTransient, Err: cause}
		default:
			return nil, &BackendError{Kind: ErrorOther, Err: cause}
		}
	}

	var out whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &BackendError{Kind: ErrorOther, Err: fmt.Errorf("decode response: %w", err)}
	}
	return &Result{
		Text:        out.Text,
		Confidence:  1,
		TimestampMS: time.Now().UnixMilli(),
	}, nil
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "audio/wav", "audio/x-wav", "audio/pcm":
		return ".wav"
	case "audio/webm":
		return ".webm"
	case "audio/ogg", "audio/opus":
		return ".ogg"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	default:
		return ".bin"
	}
}
