// Package metadata resolves pool, token and USD pricing metadata from
// external APIs, with request throttling and permanent caching for immutable
// lookups.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultRetryAfter = 5 * time.Second
	maxFetchAttempts  = 5
)

// fetchJSON gets url and decodes the JSON body into out. The upstream APIs
// answer rate-limited requests with an HTML error page instead of a JSON
// error, so an HTML body plus a 429 or a "rate limit" marker means wait out
// the Retry-After header and try again.
func fetchJSON(ctx context.Context, client *http.Client, url string, out interface{}) error {
	for attempt := 0; attempt < maxFetchAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("get %s: %w", url, err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("read %s: %w", url, err)
		}

		if isHTML(body) {
			if !isRateLimit(resp, body) {
				return fmt.Errorf("get %s: html response instead of json", url)
			}
			if err := sleep(ctx, retryAfter(resp)); err != nil {
				return err
			}
			continue
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			if err := sleep(ctx, retryAfter(resp)); err != nil {
				return err
			}
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("get %s: status %d", url, resp.StatusCode)
		}

		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode %s: %w", url, err)
		}
		return nil
	}
	return fmt.Errorf("get %s: rate limited after %d attempts", url, maxFetchAttempts)
}

func isHTML(body []byte) bool {
	trimmed := strings.TrimSpace(string(body))
	return strings.HasPrefix(trimmed, "<!DOCTYPE html>") || strings.HasPrefix(trimmed, "<html>")
}

func isRateLimit(resp *http.Response, body []byte) bool {
	return resp.StatusCode == http.StatusTooManyRequests ||
		strings.Contains(strings.ToLower(string(body)), "rate limit")
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds >= 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultRetryAfter
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
