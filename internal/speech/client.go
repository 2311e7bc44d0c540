package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"audioscribe-go/internal/domain"
	"audioscribe-go/internal/logger"
	"audioscribe-go/internal/provider"
)

// Client talks to a Voxtral-style transcription endpoint:
// POST {base}/v1/audio/transcriptions with a multipart body.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	maxRetry   time.Duration
}

type Option func(*Client)

// WithRetryBudget bounds the client-side backoff for transient failures.
func WithRetryBudget(d time.Duration) Option {
	return func(c *Client) { c.maxRetry = d }
}

func NewClient(baseURL, apiKey, model string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		maxRetry:   45 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type transcriptionResponse struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
	Segments []struct {
		Start   float64 `json:"start"`
		End     float64 `json:"end"`
		Text    string  `json:"text"`
		Speaker string  `json:"speaker,omitempty"`
	} `json:"segments"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Message string `json:"message,omitempty"`
}

// Transcribe uploads one audio file and returns its transcript with
// segment-level timestamps. Transient failures are retried with exponential
// backoff; client rejections (4xx) are returned immediately as typed errors.
func (c *Client) Transcribe(ctx context.Context, path, label string, durationHint float64, mimeType string) (Result, error) {
	log := logger.New().WithField("component", "speech-client").WithField("label", label)

	if c.baseURL == "" {
		return Result{}, fmt.Errorf("speech provider URL not configured")
	}

	body, contentType, err := c.buildRequestBody(path, label, durationHint, mimeType)
	if err != nil {
		return Result{}, err
	}

	log.WithField("duration_hint", durationHint).Info("starting transcription call")

	var parsed transcriptionResponse
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/audio/transcriptions", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", contentType)
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(&provider.Error{Message: ctx.Err().Error()})
			}
			return &provider.Error{Message: err.Error()}
		}
		defer resp.Body.Close()

		raw, _ := io.ReadAll(resp.Body)

		if resp.StatusCode >= 400 {
			perr := parseError(resp.StatusCode, raw)
			log.WithField("http_status", resp.StatusCode).Warn("transcription call failed")
			if perr.ClientRejected() {
				return backoff.Permanent(perr)
			}
			return perr
		}

		if err := json.Unmarshal(raw, &parsed); err != nil {
			return &provider.Error{
				StatusCode: resp.StatusCode,
				Message:    fmt.Sprintf("decode transcription response: %v", err),
			}
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.maxRetry

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return Result{}, err
	}

	segments := make([]domain.Segment, 0, len(parsed.Segments))
	for _, s := range parsed.Segments {
		segments = append(segments, domain.Segment{
			Start:   s.Start,
			End:     s.End,
			Text:    s.Text,
			Speaker: s.Speaker,
		})
	}

	log.WithField("segments", len(segments)).Info("transcription call completed")

	return Result{
		Text:     parsed.Text,
		Segments: segments,
		Language: parsed.Language,
	}, nil
}

func (c *Client) buildRequestBody(path, label string, durationHint float64, mimeType string) ([]byte, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	part, err := w.CreateFormFile("file", label)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("read audio file: %w", err)
	}

	_ = w.WriteField("model", c.model)
	_ = w.WriteField("timestamp_granularities", "segment")
	if durationHint > 0 {
		_ = w.WriteField("duration_hint", strconv.FormatFloat(durationHint, 'f', 1, 64))
	}
	if mimeType != "" {
		_ = w.WriteField("mime_type", mimeType)
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}

	return b.Bytes(), w.FormDataContentType(), nil
}

func parseError(status int, raw []byte) *provider.Error {
	var er errorResponse
	_ = json.Unmarshal(raw, &er)

	msg := er.Error.Message
	if msg == "" {
		msg = er.Message
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	return &provider.Error{
		StatusCode: status,
		Code:       er.Error.Code,
		Message:    msg,
	}
}
