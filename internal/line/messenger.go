// Package line sends replies and pushes through the LINE Messaging API.
package line

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"togglbot/internal/logging"
)

const (
	// MaxTextRunes is LINE's limit for one text message.
	MaxTextRunes = 5000

	DefaultPushRetries  = 3
	DefaultRetryInitial = 500 * time.Millisecond
)

type Option func(*options)

type options struct {
	endpoint     string
	httpClient   *http.Client
	retries      uint64
	retryInitial time.Duration
}

// WithEndpoint overrides https://api.line.me.
func WithEndpoint(endpoint string) Option {
	return func(o *options) { o.endpoint = endpoint }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithPushRetry sets how often a failed push is re-sent and the first delay.
func WithPushRetry(retries uint64, initial time.Duration) Option {
	return func(o *options) {
		o.retries = retries
		if initial > 0 {
			o.retryInitial = initial
		}
	}
}

type Messenger struct {
	api          *messaging_api.MessagingApiAPI
	retries      uint64
	retryInitial time.Duration
}

func NewMessenger(channelToken string, opts ...Option) (*Messenger, error) {
	o := options{
		retries:      DefaultPushRetries,
		retryInitial: DefaultRetryInitial,
	}
	for _, opt := range opts {
		opt(&o)
	}

	var apiOpts []messaging_api.MessagingApiAPIOption
	if o.endpoint != "" {
		apiOpts = append(apiOpts, messaging_api.WithEndpoint(o.endpoint))
	}
	if o.httpClient != nil {
		apiOpts = append(apiOpts, messaging_api.WithHTTPClient(o.httpClient))
	}

	api, err := messaging_api.NewMessagingApiAPI(channelToken, apiOpts...)
	if err != nil {
		return nil, fmt.Errorf("create messaging api client: %w", err)
	}
	return &Messenger{
		api:          api,
		retries:      o.retries,
		retryInitial: o.retryInitial,
	}, nil
}

// Reply answers an inbound event. Reply tokens are single use, so a failed
// reply is not retried.
func (m *Messenger) Reply(ctx context.Context, replyToken, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := m.api.ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   textMessages(text),
	})
	if err != nil {
		return fmt.Errorf("reply message: %w", err)
	}
	return nil
}

// Push sends an unsolicited message. Every attempt carries the same retry
// key so LINE delivers the message at most once.
func (m *Messenger) Push(ctx context.Context, userID, text string) error {
	retryKey := uuid.NewString()
	req := &messaging_api.PushMessageRequest{
		To:       userID,
		Messages: textMessages(text),
	}

	attempt := 0
	op := func() error {
		attempt++
		resp, _, err := m.api.PushMessageWithHttpInfo(req, retryKey)
		if err == nil {
			return nil
		}
		if resp != nil {
			if resp.StatusCode == http.StatusConflict {
				// The retry key was already accepted.
				return nil
			}
			if !retryable(resp.StatusCode) {
				return backoff.Permanent(err)
			}
		}
		logging.Warn().Err(err).Str("user_id", userID).Int("attempt", attempt).Msg("push failed; retrying")
		return err
	}

	if err := backoff.Retry(op, m.newPushBackoff(ctx)); err != nil {
		return fmt.Errorf("push message: %w", err)
	}
	return nil
}

func (m *Messenger) newPushBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.retryInitial
	b.MaxInterval = 10 * m.retryInitial
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, m.retries), ctx)
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func textMessages(text string) []messaging_api.MessageInterface {
	return []messaging_api.MessageInterface{
		messaging_api.TextMessage{Text: truncateRunes(text, MaxTextRunes)},
	}
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
