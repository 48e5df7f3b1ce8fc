// Package upload sends finished benchmark results to a remote results
// service.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/seantiz/benchrun/internal/device"
	"github.com/seantiz/benchrun/internal/model"
)

// ResultsPath is appended to the base URL for uploads.
const ResultsPath = "/api/results"

// maxRetries bounds resends after a transport error or a 5xx response.
const maxRetries = 3

// ErrNoBaseURL is returned by Send when no upload URL is configured.
var ErrNoBaseURL = errors.New("upload url not configured")

// ResultSource lists finished executions, oldest first.
type ResultSource interface {
	ListResults(ctx context.Context) ([]*model.Execution, error)
}

// Payload is the JSON document posted to the results service.
type Payload struct {
	Device     device.Info        `json:"device"`
	UploadedAt time.Time          `json:"uploaded_at"`
	Results    []*model.Execution `json:"results"`
}

// Uploader posts result snapshots to <baseURL>/api/results.
type Uploader struct {
	baseURL string
	src     ResultSource
	client  *http.Client
	logger  *slog.Logger
	collect func(context.Context) device.Info
	backOff func(context.Context) backoff.BackOff
}

// NewUploader creates an uploader. A nil client uses NewClient with the
// default config.
func NewUploader(baseURL string, src ResultSource, client *http.Client, logger *slog.Logger) *Uploader {
	if client == nil {
		client = NewClient(DefaultClientConfig())
	}
	return &Uploader{
		baseURL: strings.TrimRight(baseURL, "/"),
		src:     src,
		client:  client,
		logger:  logger,
		collect: device.Collect,
		backOff: defaultBackOff,
	}
}

func defaultBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	return backoff.WithContext(backoff.WithMaxRetries(b, maxRetries), ctx)
}

// Upload sends the current results and reports whether the service accepted
// them. Failures are logged.
func (u *Uploader) Upload(ctx context.Context) bool {
	if err := u.Send(ctx); err != nil {
		u.logger.Warn("upload failed", "url", u.baseURL, "error", err)
		return false
	}
	return true
}

// Send posts the current results. Any non-2xx response is an error. Transport
// errors and 5xx responses are retried with exponential backoff.
func (u *Uploader) Send(ctx context.Context) error {
	if u.baseURL == "" {
		return ErrNoBaseURL
	}

	results, err := u.src.ListResults(ctx)
	if err != nil {
		return fmt.Errorf("list results: %w", err)
	}
	if results == nil {
		results = []*model.Execution{}
	}

	body, err := json.Marshal(Payload{
		Device:     u.collect(ctx),
		UploadedAt: time.Now().UTC(),
		Results:    results,
	})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	attempt := 0
	post := func() error {
		attempt++
		return u.post(ctx, body)
	}
	notify := func(err error, wait time.Duration) {
		u.logger.Debug("upload retry", "attempt", attempt, "wait", wait, "error", err)
	}
	if err := backoff.RetryNotify(post, u.backOff(ctx), notify); err != nil {
		return err
	}

	u.logger.Info("results uploaded", "url", u.baseURL, "results", len(results), "attempts", attempt)
	return nil
}

// post sends one request. Client errors are permanent; transport errors and
// server errors may be retried.
func (u *Uploader) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+ResultsPath, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("post results: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("results service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode < 500 {
			return backoff.Permanent(err)
		}
		return err
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
