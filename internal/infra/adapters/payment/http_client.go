package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"payuz/internal/domain"
)

// GatewayError is a non-2xx or malformed reply from a vendor endpoint. The
// HTTP status and raw body are kept for diagnostics; the body is never logged
// by this package since vendor replies may echo credentials.
type GatewayError struct {
	Status int
	Body   string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway returned HTTP %d", e.Status)
}

// httpClient is a thin base-URL transport shared by the merchant APIs.
// No retries: a single network fault surfaces immediately to the caller.
type httpClient struct {
	base string
	hc   *http.Client
}

func newHTTPClient(baseURL string, timeout time.Duration) *httpClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &httpClient{base: baseURL, hc: &http.Client{Timeout: timeout}}
}

// doJSON issues a request with an optional JSON body and decodes the JSON
// reply into a generic map. Headers are applied verbatim.
func (c *httpClient) doJSON(ctx context.Context, method, path string, headers map[string]string, body any) (map[string]any, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, fmt.Errorf("%w: HTTP %d", domain.ErrAuth, resp.StatusCode)
		}
		return nil, &GatewayError{Status: resp.StatusCode, Body: string(raw)}
	}

	out := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, &GatewayError{Status: resp.StatusCode, Body: string(raw)}
		}
	}
	return out, nil
}
