package ollama

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/sirupsen/logrus"

	"github.com/bitanath/dental-triage/pkg/processing"
	"github.com/bitanath/dental-triage/pkg/session"
)

// defaultTimeout bounds a model call when the caller's context carries
// no deadline. Vision models on CPU can be slow.
const defaultTimeout = 300 * time.Second

// classifyPrompt asks the treatment model for one of the two fixed
// category ids the session expects.
const classifyPrompt = "Classify this cropped dental radiograph. " +
	"Answer with exactly one word: treatment if the tooth needs treatment, no-treatment otherwise."

// Models names the three collaborator models served by one Ollama
// instance.
type Models struct {
	Detect   string
	Classify string
	Diagnose string
}

// Client implements the session collaborator interfaces over the
// Ollama chat API. Safe for concurrent use by independent sessions; the
// underlying api.Client carries no per-call state.
type Client struct {
	client *api.Client
	models Models
	log    *logrus.Entry

	// Image payload encoding sent to the server.
	sendFormat  string
	sendMaxDim  int
	sendQuality int
}

var (
	_ session.Detector            = (*Client)(nil)
	_ session.TreatmentClassifier = (*Client)(nil)
	_ session.Diagnoser           = (*Client)(nil)
)

// NewClient creates a collaborator client for the given server URL.
// Any path component (like /api/chat) is stripped; only scheme and host
// are used.
func NewClient(serverURL string, models Models) (*Client, error) {
	parsed, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	base := &url.URL{Scheme: parsed.Scheme, Host: parsed.Host}

	return &Client{
		client:      api.NewClient(base, http.DefaultClient),
		models:      models,
		log:         logrus.WithField("component", "ollama"),
		sendFormat:  "jpg",
		sendMaxDim:  1536,
		sendQuality: 85,
	}, nil
}

// DetectTeeth sends the full X-ray with the multi-category detect
// prompt and returns the raw model output for the token codec.
func (c *Client) DetectTeeth(ctx context.Context, img image.Image, prompt string) (string, error) {
	return c.chat(ctx, c.models.Detect, prompt, img)
}

// ClassifyTreatment labels a prepared tooth crop. The model's free-text
// answer is normalized onto the fixed label set.
func (c *Client) ClassifyTreatment(ctx context.Context, crop image.Image) (string, error) {
	raw, err := c.chat(ctx, c.models.Classify, classifyPrompt, crop)
	if err != nil {
		return "", err
	}
	return normalizeTreatmentLabel(raw), nil
}

// Diagnose sends a prepared tooth crop with the fixed instruction and
// returns the finding text verbatim.
func (c *Client) Diagnose(ctx context.Context, crop image.Image, instruction string) (string, error) {
	raw, err := c.chat(ctx, c.models.Diagnose, instruction, crop)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}

func (c *Client) chat(ctx context.Context, model, prompt string, img image.Image) (string, error) {
	if model == "" {
		return "", fmt.Errorf("no model configured")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
	}

	payload, err := processing.EncodeImageBytes(img, c.sendFormat, c.sendMaxDim, c.sendQuality)
	if err != nil {
		return "", fmt.Errorf("encoding image payload: %w", err)
	}

	streamFalse := false
	req := &api.ChatRequest{
		Model: model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: prompt,
				Images:  []api.ImageData{api.ImageData(payload)},
			},
		},
		Stream: &streamFalse,
	}

	start := time.Now()
	var content string
	err = c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content = resp.Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat error: %w", err)
	}
	c.log.WithFields(logrus.Fields{
		"model":    model,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debug("model call complete")

	if content == "" {
		return "", fmt.Errorf("empty response from model %s", model)
	}
	return content, nil
}

// normalizeTreatmentLabel maps free-text classifier output onto the
// fixed binary label set.
func normalizeTreatmentLabel(raw string) string {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	cleaned = strings.Trim(cleaned, ".!\"'`")
	if strings.HasPrefix(cleaned, "no") {
		return "no-treatment"
	}
	if strings.Contains(cleaned, session.TreatmentLabel) {
		return session.TreatmentLabel
	}
	return "no-treatment"
}
