package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	maxRetries = 4
	userAgent  = "atlas-cli/1.0"
)

// HTTPLoader fetches snapshots over HTTP. Requests share a rate limiter and
// retry on transient errors (429, 5xx, transport failures).
type HTTPLoader struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	token      string
	backoff    time.Duration
}

// NewHTTPLoader creates an HTTPLoader. token, when set, is sent as a bearer
// credential.
func NewHTTPLoader(timeout time.Duration, ratePerSec float64, token string) *HTTPLoader {
	burst := int(ratePerSec)
	if burst < 1 {
		burst = 1
	}
	return &HTTPLoader{
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), burst),
		token:      token,
		backoff:    500 * time.Millisecond,
	}
}

// WithBackoff sets the base retry delay. Used by tests to keep retries fast.
func (l *HTTPLoader) WithBackoff(d time.Duration) *HTTPLoader {
	l.backoff = d
	return l
}

// Load implements Loader.
func (l *HTTPLoader) Load(ctx context.Context, ref string) ([]byte, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	slog.Debug("snapshot request", "url", ref)

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * l.backoff
			slog.Debug("retrying after backoff", "attempt", attempt, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
		if err != nil {
			return nil, fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", userAgent)
		if l.token != "" {
			req.Header.Set("Authorization", "Bearer "+l.token)
		}

		resp, err := l.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("http: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("reading body: %w", err)
			continue
		}

		slog.Debug("snapshot response", "status", resp.StatusCode, "bytes", len(body))

		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, snippet(body))
			continue
		case resp.StatusCode == http.StatusNotFound:
			return nil, fmt.Errorf("%s: %w", ref, ErrNotFound)
		case resp.StatusCode != http.StatusOK:
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, snippet(body))
		}
		return body, nil
	}
	return nil, fmt.Errorf("after %d attempts: %w", maxRetries, lastErr)
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "…"
	}
	return s
}
