package invalidation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RevalidateKeyHeader carries the shared revalidation secret.
const RevalidateKeyHeader = "x-revalidate-key"

// Revalidator calls the frontend's on-demand revalidation endpoint.
type Revalidator struct {
	endpoint string
	secret   string
	timeout  time.Duration
	client   *http.Client
}

// NewRevalidator targets {siteURL}/api/revalidate. A nil client uses
// http.DefaultClient.
func NewRevalidator(siteURL, secret string, timeout time.Duration, client *http.Client) *Revalidator {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Revalidator{
		endpoint: strings.TrimRight(siteURL, "/") + "/api/revalidate",
		secret:   secret,
		timeout:  timeout,
		client:   client,
	}
}

// Revalidate regenerates the page(s) named by target.
func (r *Revalidator) Revalidate(ctx context.Context, target Target) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	body, err := json.Marshal(target)
	if err != nil {
		return fmt.Errorf("marshal revalidate body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build revalidate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(RevalidateKeyHeader, r.secret)

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("revalidate %s: %w", describe(target), err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("revalidate %s: status %d", describe(target), resp.StatusCode)
	}
	return nil
}

func describe(t Target) string {
	switch {
	case t.Slug != "":
		return t.Type + ":" + t.Slug
	case t.Path != "":
		return t.Type + ":" + t.Path
	default:
		return t.Type
	}
}
