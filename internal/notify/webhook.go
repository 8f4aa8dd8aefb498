package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/raffis/matrun/internal/errdefs"
)

type httpOption func(*httpSink)

func WithAttempts(attempts uint) httpOption {
	return func(s *httpSink) {
		if attempts > 0 {
			s.attempts = attempts
		}
	}
}

func WithDelay(delay time.Duration) httpOption {
	return func(s *httpSink) {
		s.delay = delay
	}
}

func WithHTTPClient(client *http.Client) httpOption {
	return func(s *httpSink) {
		s.client = client
	}
}

type httpSink struct {
	url      string
	client   *http.Client
	attempts uint
	delay    time.Duration
	encode   func(Event) ([]byte, error)
}

func newHTTPSink(url string, encode func(Event) ([]byte, error), opts ...httpOption) *httpSink {
	s := &httpSink{
		url:      url,
		client:   http.DefaultClient,
		attempts: 3,
		delay:    time.Second,
		encode:   encode,
	}

	for _, o := range opts {
		o(s)
	}

	return s
}

// NewWebhook posts the JSON encoded event to url.
func NewWebhook(url string, opts ...httpOption) Sink {
	return newHTTPSink(url, func(e Event) ([]byte, error) {
		return json.Marshal(e)
	}, opts...)
}

type chatMessage struct {
	Text string `json:"text"`
}

// NewChat posts a slack compatible text message to an incoming webhook url.
func NewChat(url string, opts ...httpOption) Sink {
	return newHTTPSink(url, func(e Event) ([]byte, error) {
		return json.Marshal(chatMessage{Text: e.Text()})
	}, opts...)
}

func (s *httpSink) Send(ctx context.Context, event Event) error {
	body, err := s.encode(event)
	if err != nil {
		return fmt.Errorf("%w: failed to encode event: %w", errdefs.ErrTransport, err)
	}

	err = retry.Do(func() error {
		return s.post(ctx, body)
	},
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.Delay(s.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)

	if err != nil {
		return fmt.Errorf("%w: %w", errdefs.ErrTransport, err)
	}

	return nil
}

func (s *httpSink) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return retry.Unrecoverable(err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "matrun")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}

	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("post %s: unexpected status %d", s.url, resp.StatusCode)
	case resp.StatusCode >= 400:
		return retry.Unrecoverable(fmt.Errorf("post %s: unexpected status %d", s.url, resp.StatusCode))
	}

	return nil
}
