package uplink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"flairnode-agent/internal/model"
)

var (
	ErrUnexpectedStatus  = errors.New("uplink returned non-2xx status")
	ErrMalformedResponse = errors.New("uplink response is not a JSON object")
)

const BootIDHeader = "X-Boot-ID"

// Client posts queued telemetry to the remote server and returns the
// server's configuration document.
type Client interface {
	Sync(ctx context.Context, req model.SyncRequest) (json.RawMessage, error)
}

type httpClient struct {
	endpoint   string
	bootID     string
	httpClient *http.Client
}

func NewClient(endpoint, bootID string, timeout time.Duration) Client {
	return &httpClient{
		endpoint: endpoint,
		bootID:   bootID,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *httpClient) Sync(ctx context.Context, syncReq model.SyncRequest) (json.RawMessage, error) {
	bodyBytes, err := json.Marshal(syncReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sync request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if c.bootID != "" {
		req.Header.Set(BootIDHeader, c.bootID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sync request failed: %w", err)
	}
	defer resp.Body.Close()

	respBodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Debug().Int("status_code", resp.StatusCode).Bytes("response_body", respBodyBytes).Msg("Uplink returned non-OK status")
		return nil, fmt.Errorf("%w: status code %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	return parseConfigDocument(respBodyBytes)
}

// parseConfigDocument accepts a JSON object or an empty body, which the
// server sends when it has nothing to push.
func parseConfigDocument(body []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return json.RawMessage("{}"), nil
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &doc); err != nil || doc == nil {
		if err == nil {
			err = errors.New("null document")
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return json.RawMessage(trimmed), nil
}
