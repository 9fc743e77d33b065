package lastfm

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// envelope is the root <lfm> element of every API response.
type envelope struct {
	XMLName xml.Name `xml:"lfm"`
	Status  string   `xml:"status,attr"`
	Inner   []byte   `xml:",innerxml"`
}

type apiError struct {
	Code    int    `xml:"code,attr"`
	Message string `xml:",chardata"`
}

const (
	statusFailed = "failed"

	maxAttempts = 3
	maxBackoff  = 30 * time.Second
)

// call POSTs a signed request and returns the inner XML of a successful
// response. Network failures, 5xx responses and temporary API errors are
// retried with exponential backoff.
func (c *Client) call(ctx context.Context, method string, params map[string]string, requiresAuth bool) ([]byte, error) {
	req := make(map[string]string, len(params)+3)
	for k, v := range params {
		req[k] = v
	}
	req["method"] = method
	req["api_key"] = c.apiKey
	if requiresAuth {
		if c.sessionKey == "" {
			return nil, ErrNoSessionKey
		}
		req["sk"] = c.sessionKey
	}

	form := url.Values{}
	for k, v := range req {
		form.Set(k, v)
	}
	form.Set("api_sig", sign(req, c.apiSecret))
	body := form.Encode()

	backoff := c.backoff()
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		c.logDebugf("lastfm: calling %s (attempt %d/%d)", method, attempt, maxAttempts)

		inner, retry, err := c.do(ctx, body)
		if err == nil {
			c.logDebugf("lastfm: %s succeeded", method)
			return inner, nil
		}
		if !retry || attempt == maxAttempts {
			return nil, err
		}

		lastErr = err
		c.logDebugf("lastfm: %s failed, retrying in %s: %v", method, backoff, err)
		if !sleep(ctx, backoff) {
			return nil, ctx.Err()
		}
		backoff = min(backoff*2, maxBackoff)
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// do performs one round trip. retry reports whether the failure is worth
// another attempt.
func (c *Client) do(ctx context.Context, body string) (inner []byte, retry bool, err error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, isNetworkError(err), fmt.Errorf("http request failed: %w", err)
	}
	data, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("server error: %s", resp.Status)
	}

	// Last.fm reports API errors with 4xx statuses and an <lfm status="failed">
	// body, so the body is parsed before the status code is judged.
	var env envelope
	if xmlErr := xml.Unmarshal(data, &env); xmlErr != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, false, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}
		return nil, false, fmt.Errorf("failed to parse XML response: %w", xmlErr)
	}

	if env.Status == statusFailed {
		var apiErr apiError
		if err := xml.Unmarshal(env.Inner, &apiErr); err != nil {
			return nil, false, fmt.Errorf("failed to parse error response: %w", err)
		}
		lfmErr := &Error{Code: apiErr.Code, Message: strings.TrimSpace(apiErr.Message)}
		return nil, lfmErr.Temporary(), lfmErr
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return env.Inner, false, nil
}

// decodeInner unmarshals the inner XML of a response into v.
func decodeInner(inner []byte, v interface{}) error {
	var buf bytes.Buffer
	buf.WriteString("<root>")
	buf.Write(inner)
	buf.WriteString("</root>")
	return xml.Unmarshal(buf.Bytes(), v)
}

func (c *Client) backoff() time.Duration {
	if c.retryBackoff > 0 {
		return c.retryBackoff
	}
	return time.Second
}

func isNetworkError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr)
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
