package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/agentstation/taxamap/pkg/constants"
	"github.com/agentstation/taxamap/pkg/errors"
	"github.com/agentstation/taxamap/pkg/logging"
)

// GetJSON fetches url and decodes a JSON body into target.
func (c *Client) GetJSON(ctx context.Context, url string, target any) error {
	resp, err := c.Get(ctx, url, "application/json")
	if err != nil {
		return err
	}
	return c.DecodeResponse(ctx, resp, target)
}

// GetBody fetches url and returns the raw body, e.g. an HTML page.
func (c *Client) GetBody(ctx context.Context, url, accept string) ([]byte, error) {
	resp, err := c.Get(ctx, url, accept)
	if err != nil {
		return nil, err
	}
	defer c.closeBody(ctx, resp)

	if err := c.checkStatus(resp); err != nil {
		return nil, err
	}
	return readLimited(resp.Body)
}

// DecodeResponse decodes a JSON response into the target structure.
// 204 No Content is reported as not found.
func (c *Client) DecodeResponse(ctx context.Context, resp *http.Response, target any) error {
	defer c.closeBody(ctx, resp)

	if err := c.checkStatus(resp); err != nil {
		return err
	}
	body, err := readLimited(resp.Body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, target); err != nil {
		return errors.WrapParse("json", endpoint(resp), err)
	}
	return nil
}

func (c *Client) checkStatus(resp *http.Response) error {
	if resp.StatusCode == http.StatusNoContent {
		return &errors.APIError{
			Source:     c.source,
			StatusCode: http.StatusNotFound,
			Message:    "no content",
			Endpoint:   endpoint(resp),
		}
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &errors.APIError{
		Source:     c.source,
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(snippet)),
		Endpoint:   endpoint(resp),
		RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
	}
}

func (c *Client) closeBody(ctx context.Context, resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		logging.FromContext(ctx).Warn().Err(err).Str("source", c.source).Msg("failed to close response body")
	}
}

func readLimited(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, constants.MaxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", errors.ErrSourceUnavailable, err)
	}
	if len(body) > constants.MaxResponseBytes {
		return nil, errors.NewParseError("http", "", "response body too large", nil)
	}
	return body, nil
}

func endpoint(resp *http.Response) string {
	if resp.Request == nil || resp.Request.URL == nil {
		return ""
	}
	return resp.Request.URL.Redacted()
}

// ParseRetryAfter interprets a Retry-After header given as delay seconds or
// an HTTP date. Unparseable or past values yield zero.
func ParseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
