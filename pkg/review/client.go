package review

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

// Verdict values returned by the image-review service.
const (
	VerdictAccept    = "accept"
	VerdictReject    = "reject"
	VerdictUncertain = "uncertain"
)

type Result struct {
	Verdict     string `json:"verdict"`
	Explanation string `json:"explanation"`
}

// Client talks to the external image-review service. The service is handed a
// photo reference and per-step instructions and answers accept/reject/uncertain.
type Client struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Client  *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Timeout: timeout,
		Client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Review calls the review service. The round-trip is bounded by the client
// timeout and by ctx; callers map context deadline errors to a pending verdict.
func (c *Client) Review(ctx context.Context, photoRef, prompt string) (*Result, error) {
	url := fmt.Sprintf("%s/v1/review", c.BaseURL)

	reqBody := map[string]interface{}{
		"photo_url":    photoRef,
		"instructions": prompt,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		log.Printf("Review service returned %d: %s", resp.StatusCode, string(body))
		return nil, fmt.Errorf("photo review failed: %d", resp.StatusCode)
	}

	var out Result
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}

	return &out, nil
}
