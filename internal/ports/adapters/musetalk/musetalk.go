// Package musetalk is the HTTP client for the frame-generation service.
// It speaks the batch POST /infer contract and the NDJSON streaming
// variant, retrying transport failures with exponential backoff and never
// retrying a rejected request.
package musetalk

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vidforge/lipsync/internal/ports"
	"github.com/vidforge/lipsync/internal/types"
)

type Options struct {
	// RequestTimeout bounds a single inference attempt. Generation is
	// GPU-bound and slow; the default is generous.
	RequestTimeout time.Duration
	HealthTimeout  time.Duration
	Retries        int
	BackoffBase    time.Duration
	// Grace is how long a stream may sit idle after its last frame before
	// the sequence is declared incomplete.
	Grace      time.Duration
	Stream     bool
	HTTPClient *http.Client
	Logf       func(format string, args ...any)
}

type Client struct {
	baseURL string
	opts    Options
	http    *http.Client
	logf    func(format string, args ...any)
}

func New(baseURL string, opts Options) (*Client, error) {
	if err := ValidateBaseURL(baseURL); err != nil {
		return nil, err
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Minute
	}
	if opts.HealthTimeout <= 0 {
		opts.HealthTimeout = 10 * time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 2 * time.Second
	}
	if opts.Grace <= 0 {
		opts.Grace = 10 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	logf := opts.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Client{baseURL: normalizeBaseURL(baseURL), opts: opts, http: hc, logf: logf}, nil
}

// Health probes the server before any large payload is submitted.
func (c *Client) Health(ctx context.Context) (types.ServerHealth, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.opts.HealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return types.ServerHealth{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return types.ServerHealth{}, &ServiceUnavailableError{URL: c.baseURL, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return types.ServerHealth{}, &ServiceUnavailableError{URL: c.baseURL, Err: fmt.Errorf("health status %d", resp.StatusCode)}
	}
	var h types.ServerHealth
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return types.ServerHealth{}, &ServiceUnavailableError{URL: c.baseURL, Err: fmt.Errorf("invalid health response: %w", err)}
	}
	return h, nil
}

// Generate submits the request and hands every decoded frame to sink.
// Retries apply to connection failures and 5xx responses; a 4xx surfaces
// immediately as RequestRejectedError. In streaming mode no retry happens
// once frames have been delivered, since a replay would duplicate indices.
func (c *Client) Generate(ctx context.Context, req types.InferenceRequest, sink ports.FrameSink) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal inference request: %w", err)
	}
	c.logf("inference request: %.1f MB, fps=%d, stream=%v", float64(len(body))/1e6, req.FPS, c.opts.Stream)

	if c.opts.Stream {
		return c.generateStream(ctx, body, sink)
	}
	return c.generateBatch(ctx, body, sink)
}

type wireEvent struct {
	Index              int     `json:"index"`
	Data               string  `json:"data,omitempty"`
	Status             string  `json:"status,omitempty"`
	TotalFrames        int     `json:"total_frames,omitempty"`
	FPS                int     `json:"fps,omitempty"`
	ProcessingTimeSecs float64 `json:"processing_time_secs,omitempty"`
}

type inferenceResponse struct {
	Status             string      `json:"status"`
	TotalFrames        int         `json:"total_frames"`
	FPS                int         `json:"fps"`
	Frames             []wireEvent `json:"frames"`
	ProcessingTimeSecs float64     `json:"processing_time_secs"`
}

func (c *Client) generateBatch(ctx context.Context, body []byte, sink ports.FrameSink) error {
	var out inferenceResponse
	err := c.withRetries(ctx, "POST /infer", func(attemptCtx context.Context) error {
		resp, rerr := c.post(attemptCtx, "/infer", body)
		if rerr != nil {
			return rerr
		}
		defer resp.Body.Close()
		out = inferenceResponse{}
		if derr := json.NewDecoder(resp.Body).Decode(&out); derr != nil {
			return &TransportError{Op: "POST /infer", Err: fmt.Errorf("decode response: %w", derr)}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := sink.Expect(out.TotalFrames, out.FPS); err != nil {
		return err
	}
	for _, wf := range out.Frames {
		f, err := decodeFrame(wf)
		if err != nil {
			return err
		}
		if err := sink.Deliver(ctx, f); err != nil {
			return err
		}
	}
	if len(out.Frames) != out.TotalFrames {
		return &IncompleteSequenceError{Expected: out.TotalFrames, Received: len(out.Frames)}
	}
	c.logf("inference done: %d frames in %.1fs", out.TotalFrames, out.ProcessingTimeSecs)
	return nil
}

func (c *Client) generateStream(ctx context.Context, body []byte, sink ports.FrameSink) error {
	delivered := 0
	err := c.withRetries(ctx, "POST /infer/stream", func(attemptCtx context.Context) error {
		watchCtx, cancel := context.WithCancel(attemptCtx)
		defer cancel()

		resp, rerr := c.post(watchCtx, "/infer/stream", body)
		if rerr != nil {
			return rerr
		}
		defer resp.Body.Close()

		dec := json.NewDecoder(resp.Body)
		var hdr wireEvent
		if derr := dec.Decode(&hdr); derr != nil {
			return &TransportError{Op: "POST /infer/stream", Err: fmt.Errorf("decode stream header: %w", derr)}
		}
		if hdr.TotalFrames <= 0 {
			return &TransportError{Op: "POST /infer/stream", Err: fmt.Errorf("stream header declared %d frames", hdr.TotalFrames)}
		}
		if err := sink.Expect(hdr.TotalFrames, hdr.FPS); err != nil {
			return err
		}

		// Idle watchdog implementing the completion grace period: the
		// attempt is cut when no frame arrives for Grace after the last.
		idle := time.AfterFunc(c.opts.Grace, cancel)
		defer idle.Stop()

		for {
			var ev wireEvent
			derr := dec.Decode(&ev)
			if derr == io.EOF {
				break
			}
			if derr != nil {
				// Any interruption past the header is an incomplete
				// sequence; retrying would replay already-delivered
				// indices. Outer cancellation is surfaced by the retry
				// wrapper instead.
				return &IncompleteSequenceError{Expected: hdr.TotalFrames, Received: delivered}
			}
			if ev.Data == "" {
				// Trailer object; stream is wrapping up.
				continue
			}
			idle.Stop()
			f, ferr := decodeFrame(ev)
			if ferr != nil {
				return ferr
			}
			if err := sink.Deliver(ctx, f); err != nil {
				return err
			}
			delivered++
			idle.Reset(c.opts.Grace)
		}

		if delivered != hdr.TotalFrames {
			return &IncompleteSequenceError{Expected: hdr.TotalFrames, Received: delivered}
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.logf("stream done: %d frames", delivered)
	return nil
}

// post issues one attempt and triages the response status. The returned
// response has a 2xx status; all other outcomes are errors.
func (c *Client) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "POST " + path, Err: err}
	}
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return resp, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &RequestRejectedError{Status: resp.StatusCode, Body: string(bytes.TrimSpace(b))}
	default:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &TransportError{
			Op:     "POST " + path,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("%s", bytes.TrimSpace(b)),
		}
	}
}

// withRetries runs fn with a per-attempt timeout, retrying transport
// failures with exponential backoff. Any other error stops the loop.
func (c *Client) withRetries(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= c.opts.Retries; attempt++ {
		if attempt > 0 {
			delay := c.opts.BackoffBase << (attempt - 1)
			c.logf("%s: retry %d/%d in %s after: %v", op, attempt, c.opts.Retries, delay, lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
		err := fn(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var te *TransportError
		if errors.As(err, &te) {
			lastErr = err
			continue
		}
		if errors.Is(err, context.DeadlineExceeded) {
			lastErr = &TransportError{Op: op, Err: fmt.Errorf("attempt timed out after %s", c.opts.RequestTimeout)}
			continue
		}
		return err
	}
	return lastErr
}

func decodeFrame(ev wireEvent) (types.Frame, error) {
	data, err := base64.StdEncoding.DecodeString(ev.Data)
	if err != nil {
		return types.Frame{}, fmt.Errorf("decode frame %d payload: %w", ev.Index, err)
	}
	return types.Frame{Index: ev.Index, Data: data}, nil
}
