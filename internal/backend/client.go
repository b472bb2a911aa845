// Package backend is the HTTP client for the document ingestion and
// question-answering service.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// maxDetailBytes bounds how much of an error body is kept for diagnostics.
const maxDetailBytes = 4 << 10

// Options configures a Client.
type Options struct {
	AskURL     string
	UploadURL  string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to the backend's /ask and /upload-pdf endpoints.
type Client struct {
	askURL    string
	uploadURL string
	http      *http.Client
	logger    *zap.Logger
}

// NewClient creates a backend client. Timeouts are expected to come from the
// caller's context, so the default HTTP client carries none.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: http.DefaultTransport,
			Timeout:   0,
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		askURL:    opts.AskURL,
		uploadURL: opts.UploadURL,
		http:      httpClient,
		logger:    logger.Named("backend"),
	}
}

// AskRequest is the /ask request body.
type AskRequest struct {
	Question string `json:"question"`
}

// AskResponse is the /ask response body. Answer is nil when the field is absent.
type AskResponse struct {
	Answer *string `json:"answer,omitempty"`
}

// Ask sends a single question to the question-answering endpoint.
func (c *Client) Ask(ctx context.Context, question string) (*AskResponse, error) {
	const op = "ask"

	payload, err := json.Marshal(AskRequest{Question: question})
	if err != nil {
		return nil, &Error{Op: op, Kind: KindTransport, Err: fmt.Errorf("marshaling request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.askURL, bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Op: op, Kind: KindTransport, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Op: op, Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("ask completed",
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Op: op, Kind: KindStatus, StatusCode: resp.StatusCode, Detail: readDetail(resp.Body)}
	}

	var out AskResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &Error{Op: op, Kind: KindDecode, StatusCode: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return &out, nil
}

func readDetail(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxDetailBytes))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
