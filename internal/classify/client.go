// Package classify calls the external importance-classification oracle and
// shapes its answers into results the rest of the engine can always use:
// a timeout or transport failure yields a zero-confidence fallback, never an
// error the caller has to branch on.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Verdict is the oracle's raw answer.
type Verdict struct {
	Importance float64
	Confidence float64
	Signals    []string
}

// Oracle is the interface to the classification service.
type Oracle interface {
	Classify(ctx context.Context, content string) (*Verdict, error)
}

// HTTPOracle calls a remote classification endpoint.
type HTTPOracle struct {
	url    string
	model  string
	client *http.Client
}

// NewHTTPOracle creates an oracle client for the given endpoint. Per-call
// deadlines come from the context; the http.Client timeout is a backstop.
func NewHTTPOracle(url, model string) *HTTPOracle {
	return &HTTPOracle{
		url:    url,
		model:  model,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Classify posts the content to the oracle's classify endpoint.
func (o *HTTPOracle) Classify(ctx context.Context, content string) (*Verdict, error) {
	reqBody := map[string]any{
		"model":   o.model,
		"content": content,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.url+"/v1/classify", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oracle api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oracle api status %d: %s", resp.StatusCode, respBody)
	}

	var result struct {
		Importance float64  `json:"importance"`
		Confidence float64  `json:"confidence"`
		Signals    []string `json:"signals"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &Verdict{
		Importance: result.Importance,
		Confidence: result.Confidence,
		Signals:    result.Signals,
	}, nil
}
