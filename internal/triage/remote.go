package triage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
)

const promptTemplate = `Analyze this support ticket and categorize it:

Title: %s
Description: %s

Respond with JSON:
{
  "category": "technical|billing|general|feature-request|bug-report",
  "priority": "low|medium|high|urgent",
  "confidence": 0.0-1.0
}`

// RemoteClassifier delegates classification to an OpenAI-compatible chat
// completions endpoint. Any failure falls back to the local engine; errors
// never cross this boundary.
type RemoteClassifier struct {
	cfg      config.TriageConfig
	client   *http.Client
	fallback Categorizer
	logger   *zap.Logger
}

// NewRemoteClassifier builds the classifier with its local fallback.
func NewRemoteClassifier(cfg config.TriageConfig, fallback Categorizer, logger *zap.Logger) *RemoteClassifier {
	return &RemoteClassifier{
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.Timeout()},
		fallback: fallback,
		logger:   logger,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Categorize asks the remote model, falling back to the keyword engine on
// any transport, decoding or validation failure.
func (r *RemoteClassifier) Categorize(ctx context.Context, title, description string) Result {
	result, err := r.classify(ctx, title, description)
	if err != nil {
		r.logger.Warn("remote categorization failed, falling back to keyword engine", zap.Error(err))
		return r.fallback.Categorize(ctx, title, description)
	}
	return result
}

func (r *RemoteClassifier) classify(ctx context.Context, title, description string) (Result, error) {
	payload := chatRequest{
		Model: r.cfg.Model,
		Messages: []chatMessage{
			{Role: "user", Content: fmt.Sprintf(promptTemplate, title, description)},
		},
		Temperature: 0.3,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("remote classifier returned status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{}, err
	}
	if len(parsed.Choices) == 0 {
		return Result{}, fmt.Errorf("remote classifier returned no choices")
	}

	var result Result
	if err := json.Unmarshal([]byte(parsed.Choices[0].Message.Content), &result); err != nil {
		return Result{}, fmt.Errorf("malformed classification payload: %w", err)
	}
	if !domain.ValidTicketCategory(result.Category) {
		return Result{}, fmt.Errorf("unknown category %q", result.Category)
	}
	if !domain.ValidTicketPriority(result.Priority) {
		return Result{}, fmt.Errorf("unknown priority %q", result.Priority)
	}

	result.Confidence = clampConfidence(result.Confidence)
	return result, nil
}
