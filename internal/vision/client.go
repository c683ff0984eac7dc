package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Client calls the external image-description endpoint. Every failure mode
// (timeout, non-2xx, empty answer) is reported as an error and handled by
// the caller as the fallback-to-human path, never as something fatal.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	log      *zap.Logger
}

// NewClient builds a describer for the configured endpoint.
func NewClient(endpoint, apiKey string, timeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
		log:      log,
	}
}

// Enabled reports whether a machine path is configured at all.
func (c *Client) Enabled() bool {
	return c.endpoint != ""
}

type describeRequest struct {
	Image  string `json:"image"`
	Prompt string `json:"prompt"`
}

type describeResponse struct {
	Answer string `json:"answer"`
}

// Describe sends the image and returns the free-text answer.
func (c *Client) Describe(ctx context.Context, image []byte) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}

	body, err := json.Marshal(describeRequest{
		Image:  base64.StdEncoding.EncodeToString(image),
		Prompt: "Answer the quiz question shown in this screenshot.",
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode describe request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build describe request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("describe call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused before reporting failure.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: status %d", ErrBadStatus, resp.StatusCode)
	}

	var out describeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode describe response: %w", err)
	}

	answer := strings.TrimSpace(out.Answer)
	if answer == "" {
		return "", ErrEmptyAnswer
	}

	c.log.Debug("describe succeeded", zap.Int("answer_len", len(answer)))
	return answer, nil
}
