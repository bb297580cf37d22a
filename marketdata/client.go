package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"symmoracle/retry"
)

// maxBody bounds a venue reply. Full futures tickers stay well below it.
const maxBody = 8 << 20

// HTTPDoer abstracts http.Client for ease of testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError reports a non-200 reply.
type StatusError struct {
	Source string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Source, e.Code, e.Body)
}

// fetcher performs rate-limited, retried GETs against one venue.
type fetcher struct {
	source  string
	client  HTTPDoer
	limiter *rate.Limiter
	retry   retry.Policy
}

func (f *fetcher) get(ctx context.Context, endpoint string) ([]byte, error) {
	var body []byte
	err := f.retry.Do(ctx, func(ctx context.Context) error {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return retry.Permanent(err)
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			statusErr := &StatusError{Source: f.source, Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return retry.Permanent(statusErr)
			}
			return statusErr
		}
		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		if err != nil {
			return err
		}
		body = raw
		return nil
	})
	return body, err
}

func (f *fetcher) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	body, err := f.get(ctx, endpoint)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode: %w", f.source, err)
	}
	return nil
}
