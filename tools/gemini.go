package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const GEMINI_API_BASE = "https://generativelanguage.googleapis.com"
const GEMINI_MODEL = "gemini-1.5-flash"

// GeminiClient answers free-form questions that the intent agent could not
// match. Fallback is the canned reply returned when the model is down.
type GeminiClient struct {
	APIKey        string
	Fallback      string
	APIBase       string
	Model         string
	RetryAttempts int
	RetryDelay    time.Duration
	HTTPClient    *http.Client
}

func NewGeminiClient(apiKey, fallback string, retryAttempts int, retryDelay time.Duration) *GeminiClient {
	return &GeminiClient{
		APIKey:        apiKey,
		Fallback:      fallback,
		APIBase:       GEMINI_API_BASE,
		Model:         GEMINI_MODEL,
		RetryAttempts: retryAttempts,
		RetryDelay:    retryDelay,
		HTTPClient:    &http.Client{Timeout: 60 * time.Second},
	}
}

// Answer generates a reply for the prompt. It never fails the conversation:
// after the retries are spent it returns the static fallback.
func (c *GeminiClient) Answer(ctx context.Context, prompt string) string {
	if c.APIKey == "" {
		return c.Fallback
	}

	reqBody := map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]string{{"text": prompt}}},
		},
	}
	b, _ := json.Marshal(reqBody)

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.APIBase, c.Model, c.APIKey)

	var answer string
	err := Retry(ctx, c.RetryAttempts, c.RetryDelay, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("gemini error: status=%d body=%s", resp.StatusCode, string(body))
		}

		var payload struct {
			Candidates []struct {
				Content struct {
					Parts []struct {
						Text string `json:"text"`
					} `json:"parts"`
				} `json:"content"`
			} `json:"candidates"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return err
		}
		if len(payload.Candidates) == 0 || len(payload.Candidates[0].Content.Parts) == 0 {
			return fmt.Errorf("gemini returned no candidates")
		}
		answer = payload.Candidates[0].Content.Parts[0].Text
		return nil
	})
	if err != nil {
		log.Printf("gemini: generation failed: %v", err)
		return c.Fallback
	}
	if answer == "" {
		return c.Fallback
	}
	return answer
}
