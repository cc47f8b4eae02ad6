package tracker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// DefaultTimeout bounds one HTTP delivery.
const DefaultTimeout = 10 * time.Second

// DefaultSecFetchSite is sent on every request unless Headers overrides it.
// The collector refuses posts without Sec-Fetch-Site, which browsers always
// set and plain HTTP clients never do.
const DefaultSecFetchSite = "cross-site"

func setHeaders(req *http.Request, contentType string, headers map[string]string) {
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Sec-Fetch-Site", DefaultSecFetchSite)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
}

// HTTPTransport posts JSON records to a collector.
type HTTPTransport struct {
	BaseURL string
	Client  *http.Client
	// Headers are added to every request and win over the defaults.
	Headers map[string]string
}

// NewHTTPTransport returns a transport for the collector at baseURL.
func NewHTTPTransport(baseURL string, headers map[string]string) *HTTPTransport {
	return &HTTPTransport{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: DefaultTimeout},
		Headers: headers,
	}
}

func (t *HTTPTransport) Send(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	setHeaders(req, "application/json", t.Headers)

	resp, err := t.Client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// StatusError is a non-2xx answer from the collector.
type StatusError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("post %s: unexpected status %d: %s", e.Path, e.StatusCode, e.Body)
}

// HTTPBeacon sends each record from its own goroutine with a background
// context, so delivery continues after the caller returns or is cancelled.
// Payloads go out as text/plain, like navigator.sendBeacon.
type HTTPBeacon struct {
	BaseURL string
	Client  *http.Client
	Headers map[string]string
	// OnError, when set, is called with delivery failures.
	OnError func(path string, err error)

	wg sync.WaitGroup
}

func NewHTTPBeacon(baseURL string, headers map[string]string) *HTTPBeacon {
	return &HTTPBeacon{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: DefaultTimeout},
		Headers: headers,
	}
}

func (b *HTTPBeacon) Send(path string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		b.fail(path, fmt.Errorf("encode beacon payload: %w", err))
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, b.BaseURL+path, bytes.NewReader(body))
		if err != nil {
			b.fail(path, err)
			return
		}
		setHeaders(req, "text/plain;charset=UTF-8", b.Headers)

		resp, err := b.Client.Do(req)
		if err != nil {
			b.fail(path, err)
			return
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()
}

// Wait blocks until every beacon sent so far has finished.
func (b *HTTPBeacon) Wait() {
	b.wg.Wait()
}

func (b *HTTPBeacon) fail(path string, err error) {
	if b.OnError != nil {
		b.OnError(path, err)
	}
}
