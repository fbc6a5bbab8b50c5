package tools

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"yondaime/metrics"
)

const DIALOGFLOW_API_BASE = "https://dialogflow.googleapis.com"
const DIALOGFLOW_SCOPE = "https://www.googleapis.com/auth/cloud-platform"

// serviceAccount is the subset of a Google service account key file that
// the token flow needs.
type serviceAccount struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`
}

// IntentResult is the distilled detectIntent answer. Messages carry the
// fulfillment payloads as raw JSON ready to pass through to the chat API.
type IntentResult struct {
	Intent     string
	Confidence float64
	Parameters map[string]any
	Messages   []json.RawMessage
}

type DialogflowClient struct {
	ProjectID     string
	LanguageCode  string
	APIBase       string
	RetryAttempts int
	RetryDelay    time.Duration
	HTTPClient    *http.Client

	account serviceAccount
	key     *rsa.PrivateKey

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewDialogflowClient parses the service account JSON and keeps its RSA key
// ready for signing access token assertions.
func NewDialogflowClient(projectID, languageCode, serviceAccountJSON string, retryAttempts int, retryDelay time.Duration) (*DialogflowClient, error) {
	var account serviceAccount
	if err := json.Unmarshal([]byte(serviceAccountJSON), &account); err != nil {
		return nil, fmt.Errorf("decode service account: %w", err)
	}
	if account.ClientEmail == "" || account.PrivateKey == "" {
		return nil, errors.New("service account missing client_email or private_key")
	}
	if account.TokenURI == "" {
		account.TokenURI = "https://oauth2.googleapis.com/token"
	}

	key, err := parsePrivateKey(account.PrivateKey)
	if err != nil {
		return nil, err
	}

	return &DialogflowClient{
		ProjectID:     projectID,
		LanguageCode:  languageCode,
		APIBase:       DIALOGFLOW_API_BASE,
		RetryAttempts: retryAttempts,
		RetryDelay:    retryDelay,
		HTTPClient:    &http.Client{Timeout: 30 * time.Second},
		account:       account,
		key:           key,
	}, nil
}

func parsePrivateKey(pemData string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("service account private_key is not PEM")
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("service account key is not RSA")
		}
		return rsaKey, nil
	}
	return x509.ParsePKCS1PrivateKey(block.Bytes)
}

// DetectIntent runs one Dialogflow detectIntent round trip. The session is
// keyed by user so that contexts persist across turns of a conversation.
func (c *DialogflowClient) DetectIntent(ctx context.Context, sessionID, text string) (*IntentResult, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		metrics.IntentDetections.WithLabelValues("auth_error").Inc()
		return nil, err
	}

	reqBody := map[string]any{
		"queryInput": map[string]any{
			"text": map[string]any{
				"text":         text,
				"languageCode": c.LanguageCode,
			},
		},
	}
	b, _ := json.Marshal(reqBody)

	endpoint := fmt.Sprintf("%s/v2/projects/%s/agent/sessions/%s:detectIntent",
		c.APIBase, c.ProjectID, url.PathEscape(sessionID))

	var payload struct {
		QueryResult struct {
			Intent struct {
				DisplayName string `json:"displayName"`
			} `json:"intent"`
			IntentDetectionConfidence float64           `json:"intentDetectionConfidence"`
			Parameters                map[string]any    `json:"parameters"`
			FulfillmentText           string            `json:"fulfillmentText"`
			FulfillmentMessages       []json.RawMessage `json:"fulfillmentMessages"`
		} `json:"queryResult"`
	}

	err = Retry(ctx, c.RetryAttempts, c.RetryDelay, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("dialogflow error: status=%d body=%s", resp.StatusCode, string(body))
		}
		return json.NewDecoder(resp.Body).Decode(&payload)
	})
	if err != nil {
		metrics.IntentDetections.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.IntentDetections.WithLabelValues("ok").Inc()

	result := &IntentResult{
		Intent:     payload.QueryResult.Intent.DisplayName,
		Confidence: payload.QueryResult.IntentDetectionConfidence,
		Parameters: payload.QueryResult.Parameters,
		Messages:   extractMessages(payload.QueryResult.FulfillmentMessages, payload.QueryResult.FulfillmentText),
	}
	return result, nil
}

// extractMessages turns fulfillment entries into outbound chat messages.
// Custom payloads carrying a "line" object win over plain text entries.
func extractMessages(fulfillment []json.RawMessage, fallbackText string) []json.RawMessage {
	var out []json.RawMessage
	for _, raw := range fulfillment {
		var entry struct {
			Text struct {
				Text []string `json:"text"`
			} `json:"text"`
			Payload struct {
				Line json.RawMessage `json:"line"`
			} `json:"payload"`
		}
		if err := json.Unmarshal(raw, &entry); err != nil {
			continue
		}
		if len(entry.Payload.Line) > 0 {
			out = append(out, entry.Payload.Line)
			continue
		}
		for _, t := range entry.Text.Text {
			if t != "" {
				out = append(out, TextMessage(t))
			}
		}
	}
	if len(out) == 0 && fallbackText != "" {
		out = append(out, TextMessage(fallbackText))
	}
	return out
}

// accessToken returns a cached OAuth token, minting a new one with an RS256
// signed assertion when the cached token is close to expiring.
func (c *DialogflowClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry.Add(-time.Minute)) {
		return c.token, nil
	}

	assertion, err := c.signAssertion()
	if err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("grant_type", "urn:ietf:params:oauth:grant-type:jwt-bearer")
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.account.TokenURI,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("oauth token error: status=%d body=%s", resp.StatusCode, string(body))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	if payload.AccessToken == "" {
		return "", errors.New("oauth response missing access_token")
	}

	c.token = payload.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	return c.token, nil
}

func (c *DialogflowClient) signAssertion() (string, error) {
	now := time.Now()
	header := map[string]string{"alg": "RS256", "typ": "JWT"}
	claims := map[string]any{
		"iss":   c.account.ClientEmail,
		"scope": DIALOGFLOW_SCOPE,
		"aud":   c.account.TokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}

	headerJSON, _ := json.Marshal(header)
	claimsJSON, _ := json.Marshal(claims)
	signingInput := base64.RawURLEncoding.EncodeToString(headerJSON) + "." +
		base64.RawURLEncoding.EncodeToString(claimsJSON)

	digest := sha256.Sum256([]byte(signingInput))
	signature, err := rsa.SignPKCS1v15(rand.Reader, c.key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("sign assertion: %w", err)
	}
	return signingInput + "." + base64.RawURLEncoding.EncodeToString(signature), nil
}
