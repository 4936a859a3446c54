// Package ocr recognizes text inside harvested images. Recognition
// runs out of process; the orchestrator only needs the text back, so
// the engine hides behind a small interface and a disabled default.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Recognizer extracts text from image bytes.
type Recognizer interface {
	Recognize(ctx context.Context, name string, data []byte) (string, error)
}

// Disabled is a Recognizer that always returns empty text.
type Disabled struct{}

func (Disabled) Recognize(context.Context, string, []byte) (string, error) { return "", nil }

// HTTPRecognizer posts images to an OCR service endpoint and reads
// back {"text": "..."}.
type HTTPRecognizer struct {
	endpoint string
	client   *http.Client
}

// NewHTTP builds a recognizer against endpoint.
func NewHTTP(endpoint string) *HTTPRecognizer {
	return &HTTPRecognizer{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

func (r *HTTPRecognizer) Recognize(ctx context.Context, name string, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build ocr request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Image-Name", name)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ocr request for %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ocr request for %s: status %d", name, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read ocr response for %s: %w", name, err)
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode ocr response for %s: %w", name, err)
	}
	return parsed.Text, nil
}
