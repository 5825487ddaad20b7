// Package oracle is a client for the external keyword-scoring service.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kljensen/snowball/english"
)

// Scorer extracts scored keyword phrases from text. Lower scores are more salient.
type Scorer interface {
	Extract(ctx context.Context, req Request) (*Response, error)
}

// Request is the body of POST /extract.
type Request struct {
	Text                   string  `json:"text"`
	MaxKeywords            int     `json:"max_keywords,omitempty"`
	Language               string  `json:"language,omitempty"`
	DeduplicationThreshold float64 `json:"deduplication_threshold"`
	NGramMax               int     `json:"n_gram_max,omitempty"`
}

// Phrase is one scored phrase returned by the service.
type Phrase struct {
	Keyword string  `json:"keyword"`
	Score   float64 `json:"score"`
	Stem    string  `json:"stemmed,omitempty"`
}

// GroupStem returns the service's stem when it sent one. Otherwise each word
// of the lowercased phrase is reduced with the English Snowball stemmer, so
// "large language models" and "Large Language Model" share a stem.
func (p Phrase) GroupStem() string {
	if s := strings.TrimSpace(p.Stem); s != "" {
		return strings.ToLower(s)
	}
	words := strings.Fields(strings.ToLower(p.Keyword))
	for i, w := range words {
		words[i] = english.Stem(w, false)
	}
	return strings.Join(words, " ")
}

// Response is the body returned by POST /extract.
type Response struct {
	Keywords     []Phrase `json:"keywords"`
	TextLength   int      `json:"text_length"`
	KeywordCount int      `json:"keyword_count"`
}

// Client talks to the scoring service over HTTP.
type Client struct {
	BaseURL string
	client  *http.Client
}

// NewClient creates a scoring service client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Health checks that the service is reachable.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("keyword service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("keyword service health returned %d", resp.StatusCode)
	}
	return nil
}

// Extract scores the phrases in req.Text.
func (c *Client) Extract(ctx context.Context, r Request) (*Response, error) {
	if strings.TrimSpace(r.Text) == "" {
		return nil, fmt.Errorf("extract: empty text")
	}

	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/extract", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("keyword service error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("keyword service returned %d: %s", resp.StatusCode, errorDetail(resp.Body))
	}

	var result Response
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &result, nil
}

// errorDetail pulls the "detail" field out of an error body, or returns it raw.
func errorDetail(body io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(body, 4096))
	var e struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(raw, &e); err == nil && e.Detail != nil {
		if s, ok := e.Detail.(string); ok {
			return s
		}
		b, _ := json.Marshal(e.Detail)
		return string(b)
	}
	return strings.TrimSpace(string(raw))
}
