package indicators

import (
	"context"
	"fmt"
	"time"

	xhttp "BriefMaker/pkg/http"
)

// HTTPServiceBase holds the client and base URL shared by indicator HTTP
// calls.
type HTTPServiceBase struct {
	baseURL string
	client  *xhttp.Client
}

func NewHTTPServiceBase(baseURL string, timeout time.Duration) *HTTPServiceBase {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPServiceBase{
		baseURL: baseURL,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

// PostJSON posts payload to path under baseURL and decodes the JSON reply
// into dest.
func (b *HTTPServiceBase) PostJSON(ctx context.Context, path string, payload, dest any) error {
	if b.client == nil || b.baseURL == "" {
		return fmt.Errorf("indicator http client not initialized")
	}
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    b.baseURL + path,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: payload,
	}, dest)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	return nil
}

// PostJSONWithRetry is PostJSON with up to attempts tries and a linear pause
// between them. Client errors other than 429 are not retried.
func (b *HTTPServiceBase) PostJSONWithRetry(ctx context.Context, path string, payload, dest any, attempts int) error {
	if attempts <= 1 {
		return b.PostJSON(ctx, path, payload, dest)
	}
	var err error
	for i := 1; i <= attempts; i++ {
		if err = b.PostJSON(ctx, path, payload, dest); err == nil {
			return nil
		}
		if i == attempts || !xhttp.Retryable(err) {
			break
		}
		select {
		case <-time.After(time.Duration(i) * 50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
