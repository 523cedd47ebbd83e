package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff"

	"hydrocalc/internal/models"
)

// DefaultPollInterval matches the backend's expected polling cadence
const DefaultPollInterval = time.Second

// StatusFetcher performs a single status check for a task and returns the raw
// response body. Transport failures and non-2xx responses are errors.
type StatusFetcher interface {
	FetchStatus(ctx context.Context, taskID string) ([]byte, error)
}

// StatusFetcherFunc adapts a function to StatusFetcher
type StatusFetcherFunc func(ctx context.Context, taskID string) ([]byte, error)

func (f StatusFetcherFunc) FetchStatus(ctx context.Context, taskID string) ([]byte, error) {
	return f(ctx, taskID)
}

// Variant selects how a poller decides that a task is finished
type Variant int

const (
	// VariantInteractive stops only on a SUCCESS or FAILURE status and decodes
	// the inline result.
	VariantInteractive Variant = iota
	// VariantArtifact also stops on the first response that is not a status
	// document once at least one status document was seen, and treats it as
	// "result file ready". A malformed status during genuine processing is
	// indistinguishable from that case.
	VariantArtifact
)

func (v Variant) String() string {
	switch v {
	case VariantInteractive:
		return "interactive"
	case VariantArtifact:
		return "artifact"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// Callbacks are invoked from the polling goroutine. Any of them may be nil.
type Callbacks[T any] struct {
	OnResult   func(h Handle, result T)
	OnError    func(h Handle, payload json.RawMessage)
	OnArtifact func(ref ArtifactRef)
	OnBusy     func(busy bool)
}

// Outcome summarises a finished Run
type Outcome struct {
	Status   Status          `json:"status"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Artifact *ArtifactRef    `json:"artifact,omitempty"`
	Polls    int             `json:"polls"`
}

// Poller drives the status loop of one task. T is the type the SUCCESS
// task_result is decoded into.
type Poller[T any] struct {
	variant   Variant
	fetcher   StatusFetcher
	interval  time.Duration
	callbacks Callbacks[T]
	progress  *ProgressLog
}

// NewInteractivePoller returns a poller for single-point requests whose result
// is rendered directly.
func NewInteractivePoller[T any](fetcher StatusFetcher, interval time.Duration, callbacks Callbacks[T]) *Poller[T] {
	return newPoller(VariantInteractive, fetcher, interval, callbacks)
}

// NewArtifactPoller returns a poller for upload-triggered batch requests whose
// result is a downloadable file.
func NewArtifactPoller[T any](fetcher StatusFetcher, interval time.Duration, callbacks Callbacks[T]) *Poller[T] {
	return newPoller(VariantArtifact, fetcher, interval, callbacks)
}

func newPoller[T any](variant Variant, fetcher StatusFetcher, interval time.Duration, callbacks Callbacks[T]) *Poller[T] {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller[T]{
		variant:   variant,
		fetcher:   fetcher,
		interval:  interval,
		callbacks: callbacks,
		progress:  NewProgressLog(),
	}
}

func (p *Poller[T]) Variant() Variant { return p.variant }

// Progress returns the log the poller appends to
func (p *Poller[T]) Progress() *ProgressLog { return p.progress }

// Run polls until a terminal state is observed or ctx is done. There is no
// attempt limit; cancel ctx to stop an unattended task. On cancellation the
// returned error is ctx.Err().
func (p *Poller[T]) Run(ctx context.Context, h Handle) (Outcome, error) {
	p.setBusy(true)
	defer p.setBusy(false)

	p.progress.Append("", "Starting")

	ticker := backoff.NewTicker(backoff.WithContext(backoff.NewConstantBackOff(p.interval), ctx))
	defer ticker.Stop()

	var outcome Outcome
	decoded := 0

	for {
		select {
		case <-ctx.Done():
			return outcome, p.cancelled(ctx, h)
		case _, ok := <-ticker.C:
			if !ok {
				return outcome, p.cancelled(ctx, h)
			}
		}
		if ctx.Err() != nil {
			return outcome, p.cancelled(ctx, h)
		}

		body, err := p.fetcher.FetchStatus(ctx, h.ID)
		outcome.Polls++
		if err != nil {
			if ctx.Err() != nil {
				return outcome, p.cancelled(ctx, h)
			}
			log.Printf("[WARN] %v", &models.PollTransportError{TaskID: h.ID, Err: err})
			continue
		}

		resp, err := decodeStatus(body)
		if err != nil {
			if p.variant == VariantArtifact && decoded > 0 {
				ref := ArtifactRef{TaskID: h.ID, URL: ArtifactPath(h.ID)}
				p.progress.Append(string(StatusArtifactReady), "Download result: "+ref.URL)
				log.Printf("[%s] artifact ready at %s", h.ID, ref.URL)
				if p.callbacks.OnArtifact != nil {
					p.callbacks.OnArtifact(ref)
				}
				outcome.Status = StatusArtifactReady
				outcome.Artifact = &ref
				return outcome, nil
			}
			log.Printf("[WARN] %v", &models.PollTransportError{TaskID: h.ID, Err: err})
			continue
		}
		decoded++

		switch ParseStatus(resp.TaskStatus) {
		case StatusSuccess:
			var result T
			if len(resp.TaskResult) > 0 {
				if err := json.Unmarshal(resp.TaskResult, &result); err != nil {
					// the backend finished but its result is unusable; report it
					// like a failure instead of polling a finished task forever
					p.progress.Appendf(string(StatusFailure), "undecodable result: %v", err)
					log.Printf("[ERROR] [%s] failed to decode result: %v", h.ID, err)
					if p.callbacks.OnError != nil {
						p.callbacks.OnError(h, resp.TaskResult)
					}
					outcome.Status = StatusFailure
					outcome.Payload = resp.TaskResult
					return outcome, fmt.Errorf("decode result of task %s: %w", h.ID, err)
				}
			}
			p.progress.Append(string(StatusSuccess), "")
			log.Printf("[%s] %s", h.ID, StatusSuccess)
			if p.callbacks.OnResult != nil {
				p.callbacks.OnResult(h, result)
			}
			outcome.Status = StatusSuccess
			outcome.Payload = resp.TaskResult
			return outcome, nil

		case StatusFailure:
			p.progress.Append(string(StatusFailure), progressDetail(resp.TaskResult))
			log.Printf("[ERROR] [%s] %s: %s", h.ID, StatusFailure, string(resp.TaskResult))
			if p.callbacks.OnError != nil {
				p.callbacks.OnError(h, resp.TaskResult)
			}
			outcome.Status = StatusFailure
			outcome.Payload = resp.TaskResult
			return outcome, nil

		default:
			p.progress.Append(resp.TaskStatus, progressDetail(resp.TaskResult))
		}
	}
}

func (p *Poller[T]) cancelled(ctx context.Context, h Handle) error {
	err := ctx.Err()
	if err == nil {
		err = context.Canceled
	}
	p.progress.Append("CANCELLED", "")
	log.Printf("[%s] polling stopped: %v", h.ID, err)
	return err
}

func (p *Poller[T]) setBusy(busy bool) {
	if p.callbacks.OnBusy != nil {
		p.callbacks.OnBusy(busy)
	}
}

var errNotStatusDocument = errors.New("response is not a task status document")

// decodeStatus accepts only JSON objects carrying a task_status field
func decodeStatus(body []byte) (StatusResponse, error) {
	var resp StatusResponse
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return resp, errNotStatusDocument
	}
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return resp, fmt.Errorf("decode status: %w", err)
	}
	if resp.TaskStatus == "" {
		return resp, errNotStatusDocument
	}
	return resp, nil
}

// progressDetail prefers the human readable "text" of a task_result and falls
// back to the raw payload.
func progressDetail(result json.RawMessage) string {
	trimmed := bytes.TrimSpace(result)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	var withText struct {
		Text json.RawMessage `json:"text"`
	}
	if err := json.Unmarshal(trimmed, &withText); err == nil && len(withText.Text) > 0 {
		return string(withText.Text)
	}
	return string(trimmed)
}
