package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"audioscribe-go/internal/domain"
	"audioscribe-go/internal/logger"
	"audioscribe-go/internal/provider"
)

const analyzeSystemPrompt = `You are an expert assistant for analyzing audio conversation transcripts.
The user provides a transcript and a prompt describing what they want.
Return ONLY valid JSON matching this schema, with no commentary and no markdown fences:
{
  "analysis": "",
  "speakers": {}
}
"analysis" is your answer to the user's prompt.
"speakers" maps each speaker label appearing in the transcript to the person's real name when it can be inferred from the conversation; omit labels you cannot name.`

const identifySystemPrompt = `You are given diarized transcript segments. Infer the real name of each speaker
from the conversation content. Return ONLY valid JSON, no commentary, no markdown fences:
{
  "speakers": {}
}
Map each speaker label to a name; omit labels you cannot name.`

// Client talks to an OpenAI-style chat completions gateway.
type Client struct {
	gatewayURL string
	apiKey     string
	model      string
	httpClient *http.Client
	maxRetry   time.Duration
}

func NewClient(gatewayURL, apiKey, model string, timeout time.Duration) *Client {
	return &Client{
		gatewayURL: gatewayURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		maxRetry:   45 * time.Second,
	}
}

type analyzeOutput struct {
	Analysis string            `json:"analysis"`
	Speakers map[string]string `json:"speakers"`
}

// Analyze runs the user's prompt against the transcript and returns the
// analysis text plus the inferred speaker-name map.
func (c *Client) Analyze(ctx context.Context, transcript, prompt string, segments []domain.Segment) (Result, error) {
	log := logger.New().WithField("component", "analysis-client")

	userMessage := fmt.Sprintf("Transcript:\n\"\"\"\n%s\n\"\"\"\n\nSpeaker labels in use: %s\n\nUser prompt:\n%s",
		transcript, strings.Join(speakerLabels(segments), ", "), prompt)

	raw, err := c.complete(ctx, log, analyzeSystemPrompt, userMessage)
	if err != nil {
		return Result{}, err
	}

	var out analyzeOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return Result{}, fmt.Errorf("parse analysis output: %w", err)
	}
	if out.Speakers == nil {
		out.Speakers = map[string]string{}
	}
	return Result{Analysis: out.Analysis, Speakers: out.Speakers}, nil
}

// IdentifySpeakers infers human names for diarization labels without
// producing any analysis text.
func (c *Client) IdentifySpeakers(ctx context.Context, segments []domain.Segment) (map[string]string, error) {
	log := logger.New().WithField("component", "analysis-client")

	var b strings.Builder
	for _, s := range segments {
		if s.Speaker == "" {
			continue
		}
		fmt.Fprintf(&b, "[%s] %s\n", s.Speaker, s.Text)
	}

	raw, err := c.complete(ctx, log, identifySystemPrompt, b.String())
	if err != nil {
		return nil, err
	}

	var out analyzeOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("parse speaker output: %w", err)
	}
	if out.Speakers == nil {
		out.Speakers = map[string]string{}
	}
	return out.Speakers, nil
}

// complete posts one chat completion and returns the first balanced JSON
// object found in the model's reply.
func (c *Client) complete(ctx context.Context, log *logrus.Entry, system, user string) (string, error) {
	if c.gatewayURL == "" {
		return "", fmt.Errorf("llm gateway not configured")
	}

	reqBody := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
		"temperature": 0.0,
	}
	data, _ := json.Marshal(reqBody)

	var content string
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, "POST", c.gatewayURL+"/v1/chat/completions", bytes.NewReader(data))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(&provider.Error{Message: ctx.Err().Error()})
			}
			return &provider.Error{Message: err.Error()}
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		log.Debug("llm raw response: ", string(body))

		if resp.StatusCode >= 400 {
			perr := &provider.Error{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
			if perr.ClientRejected() {
				return backoff.Permanent(perr)
			}
			return perr
		}

		if inner := extractContentFromChoices(body); inner != "" {
			content = inner
			return nil
		}

		// Fallback: find first balanced JSON anywhere in the response body.
		if fallback := extractJSON(string(body)); fallback != "" {
			content = fallback
			return nil
		}

		return &provider.Error{StatusCode: resp.StatusCode, Message: "no JSON found in LLM output"}
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.maxRetry

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return "", err
	}
	return content, nil
}

func speakerLabels(segments []domain.Segment) []string {
	seen := map[string]bool{}
	var labels []string
	for _, s := range segments {
		if s.Speaker == "" || seen[s.Speaker] {
			continue
		}
		seen[s.Speaker] = true
		labels = append(labels, s.Speaker)
	}
	return labels
}

// extractContentFromChoices reads openai-style choices[0].message.content
// and returns the first balanced JSON object inside it.
func extractContentFromChoices(body []byte) string {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return ""
	}

	choices, ok := obj["choices"].([]any)
	if !ok || len(choices) == 0 {
		return ""
	}
	c0, _ := choices[0].(map[string]any)
	if c0 == nil {
		return ""
	}
	msg, _ := c0["message"].(map[string]any)
	if msg == nil {
		return ""
	}
	content, _ := msg["content"].(string)
	return extractJSON(content)
}

// extractJSON finds the first balanced JSON object in a string.
// It strips common markdown fences first.
func extractJSON(s string) string {
	if s == "" {
		return ""
	}

	s = strings.ReplaceAll(s, "\r\n", "\n")

	// Remove markdown fences (commonly output by LLMs)
	for _, r := range []string{"```json", "```yaml", "```text", "```", "`json", "`"} {
		s = strings.ReplaceAll(s, r, "")
	}

	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return strings.TrimSpace(s[start : i+1])
			}
		}
	}

	return ""
}
