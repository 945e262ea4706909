package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/starradar/starradar/radar/internal/config"
	"github.com/starradar/starradar/radar/internal/digest"
)

const (
	maxAttempts   = 3
	sendTimeout   = 15 * time.Second
	errBodyLimit  = 512
	teamsThemeHex = "0969DA"
)

// DeliveryError reports a target that still failed after all attempts.
type DeliveryError struct {
	Type string
	Err  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("notify: %s delivery failed: %v", e.Type, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// statusError is an HTTP answer outside 2xx.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.Code)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

// retryable reports whether another attempt could succeed.
func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return !errors.Is(err, context.Canceled)
}

// Notifier delivers a digest to every configured target.
type Notifier struct {
	targets []config.NotifyTarget
	client  *http.Client
	logger  *slog.Logger

	// newBackoff is swapped in tests to avoid real waits.
	newBackoff func() *backoff
}

// New returns a Notifier for targets.
func New(targets []config.NotifyTarget, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		targets:    targets,
		client:     &http.Client{Timeout: sendTimeout},
		logger:     logger,
		newBackoff: newBackoff,
	}
}

// Deliver sends d to every target. Each target is retried up to three
// times with exponential backoff; a failing target does not stop the
// others. The returned error joins one *DeliveryError per failed target.
func (n *Notifier) Deliver(ctx context.Context, d *digest.Digest) error {
	var errs []error
	for _, t := range n.targets {
		err := n.deliverOne(ctx, t, d)
		if err != nil {
			n.logger.Error("notify: delivery failed", "type", t.Type, "err", err)
			errs = append(errs, &DeliveryError{Type: t.Type, Err: err})
			continue
		}
		n.logger.Info("notify: delivered", "type", t.Type, "items", len(d.Items))
	}
	return errors.Join(errs...)
}

func (n *Notifier) deliverOne(ctx context.Context, t config.NotifyTarget, d *digest.Digest) error {
	req, err := n.request(t, d)
	if err != nil {
		return err
	}

	bo := n.newBackoff()
	for attempt := 1; ; attempt++ {
		err = n.post(ctx, req)
		if err == nil {
			return nil
		}
		if attempt >= maxAttempts || !retryable(err) {
			return fmt.Errorf("attempt %d/%d: %w", attempt, maxAttempts, err)
		}
		wait := bo.next()
		n.logger.Warn("notify: attempt failed, will retry",
			"type", t.Type, "attempt", attempt, "retry_in", wait, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// outgoing is a fully prepared POST that can be replayed on retry.
type outgoing struct {
	url    string
	body   []byte
	bearer string
}

func (n *Notifier) request(t config.NotifyTarget, d *digest.Digest) (outgoing, error) {
	switch t.Type {
	case "resend":
		return resendRequest(t, d)
	case "slack", "teams", "http":
		url := t.URL()
		if url == "" {
			return outgoing{}, fmt.Errorf("url env %q is empty", t.URLEnv)
		}
		body, err := webhookBody(t.Type, d)
		if err != nil {
			return outgoing{}, err
		}
		return outgoing{url: url, body: body}, nil
	default:
		return outgoing{}, fmt.Errorf("unknown target type %q", t.Type)
	}
}

func resendRequest(t config.NotifyTarget, d *digest.Digest) (outgoing, error) {
	key, to := t.APIKey(), t.To()
	if key == "" {
		return outgoing{}, fmt.Errorf("api key env %q is empty", t.APIKeyEnv)
	}
	if to == "" {
		return outgoing{}, fmt.Errorf("recipient env %q is empty", t.ToEnv)
	}
	html, err := digest.HTML(d)
	if err != nil {
		return outgoing{}, err
	}
	body, err := json.Marshal(map[string]any{
		"from":    t.From,
		"to":      []string{to},
		"subject": d.Subject(),
		"html":    html,
	})
	if err != nil {
		return outgoing{}, fmt.Errorf("encode email: %w", err)
	}
	endpoint := t.Endpoint
	if endpoint == "" {
		endpoint = config.DefaultResendEndpoint
	}
	return outgoing{url: endpoint, body: body, bearer: key}, nil
}

func webhookBody(kind string, d *digest.Digest) ([]byte, error) {
	var payload any
	switch kind {
	case "slack":
		payload = map[string]string{"text": digest.Text(d)}
	case "teams":
		payload = map[string]any{
			"@type":      "MessageCard",
			"@context":   "http://schema.org/extensions",
			"themeColor": teamsThemeHex,
			"summary":    d.Subject(),
			"title":      d.Subject(),
			"text":       digest.Text(d),
		}
	default:
		payload = map[string]any{"digest": d}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return body, nil
}

func (n *Notifier) post(ctx context.Context, o outgoing) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(o.body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+o.bearer)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errBodyLimit))
		return &statusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
