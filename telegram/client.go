// Package telegram is a Bot API client whose every method is routed through
// the retrying call future. It implements core.Source for the poller.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-botpoll/backoff"
	"github.com/goliatone/go-botpoll/call"
	"github.com/goliatone/go-botpoll/core"
	"github.com/goliatone/go-botpoll/ratelimit"
	"github.com/goliatone/go-botpoll/transport"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	MethodGetWebhookInfo      = "getWebhookInfo"
	MethodGetUpdates          = "getUpdates"
	MethodGetMe               = "getMe"
	MethodSendMessage         = "sendMessage"
	MethodAnswerCallbackQuery = "answerCallbackQuery"

	maxMessageRunes = 4096
	// pollGrace is added to the long-poll timeout so the server, not the
	// client, ends an idle getUpdates.
	pollGrace = 10 * time.Second
)

type Client struct {
	adapter        transport.Adapter
	baseURL        string
	token          string
	requestTimeout time.Duration
	strict         bool
	policy         call.Policy
	logger         core.Logger
	metrics        core.MetricsRecorder
	tracker        *ratelimit.Tracker
	failFast       bool
	sleep          call.Sleeper
	newReissue     func() backoff.BackOff
}

type Option func(*Client)

func WithAdapter(adapter transport.Adapter) Option {
	return func(c *Client) {
		if adapter != nil {
			c.adapter = adapter
		}
	}
}

func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.requestTimeout = timeout
		}
	}
}

func WithStrict(strict bool) Option {
	return func(c *Client) {
		c.strict = strict
	}
}

func WithPolicy(policy call.Policy) Option {
	return func(c *Client) {
		c.policy = policy
	}
}

func WithLogger(logger core.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(c *Client) {
		if recorder != nil {
			c.metrics = recorder
		}
	}
}

func WithTracker(tracker *ratelimit.Tracker) Option {
	return func(c *Client) {
		c.tracker = tracker
	}
}

// WithFailFastThrottled makes SendMessage and AnswerCallbackQuery return a
// ratelimit.ThrottledError while the tracker holds an open retry-after window
// for that method. getUpdates always waits the window out.
func WithFailFastThrottled(enabled bool) Option {
	return func(c *Client) {
		c.failFast = enabled
	}
}

func WithSleeper(sleep call.Sleeper) Option {
	return func(c *Client) {
		c.sleep = sleep
	}
}

// WithReissueBackOff replaces the strategy pacing reissued server and
// transport failures. Passing nil reissues immediately.
func WithReissueBackOff(newBackOff func() backoff.BackOff) Option {
	return func(c *Client) {
		c.newReissue = newBackOff
	}
}

// NewClient builds a client for baseURL (for example https://api.telegram.org)
// and token.
func NewClient(baseURL string, token string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("telegram: base url is required")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("telegram: token is required")
	}
	client := &Client{
		adapter:        transport.NewRESTAdapter(nil),
		baseURL:        baseURL,
		token:          token,
		requestTimeout: core.DefaultRequestTimeout,
		policy:         call.PolicyAsymmetric,
		logger:         glog.Nop(),
		metrics:        core.NopMetricsRecorder{},
		newReissue: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// GetStatus probes the webhook configuration.
func (c *Client) GetStatus(ctx context.Context) (core.Status, error) {
	return c.GetWebhookInfo(ctx)
}

func (c *Client) GetWebhookInfo(ctx context.Context) (core.Status, error) {
	return invoke(ctx, c, MethodGetWebhookInfo, struct{}{}, c.requestTimeout, decodeJSON[core.Status])
}

type getUpdatesPayload struct {
	Offset         *int64   `json:"offset,omitempty"`
	Limit          int      `json:"limit,omitempty"`
	Timeout        int      `json:"timeout"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
}

func (c *Client) GetUpdates(ctx context.Context, req core.UpdatesRequest) ([]*core.Update, error) {
	if err := core.ValidatePollLimit(req.Limit); err != nil {
		return nil, err
	}
	payload := getUpdatesPayload{
		Limit:   req.Limit,
		Timeout: req.TimeoutSeconds,
	}
	if req.HasOffset {
		offset := req.Offset
		payload.Offset = &offset
	}
	if req.AllowedUpdates != nil {
		payload.AllowedUpdates = make([]string, 0, len(req.AllowedUpdates))
		for _, kind := range req.AllowedUpdates {
			payload.AllowedUpdates = append(payload.AllowedUpdates, string(kind))
		}
	}
	timeout := c.requestTimeout
	if longPoll := time.Duration(req.TimeoutSeconds)*time.Second + pollGrace; longPoll > timeout {
		timeout = longPoll
	}
	return invoke(ctx, c, MethodGetUpdates, payload, timeout, decodeJSON[[]*core.Update])
}

func (c *Client) GetMe(ctx context.Context) (*core.User, error) {
	return invoke(ctx, c, MethodGetMe, struct{}{}, c.requestTimeout, decodeJSON[*core.User])
}

type SendMessageRequest struct {
	ChatID              int64  `json:"chat_id"`
	Text                string `json:"text"`
	ParseMode           string `json:"parse_mode,omitempty"`
	ReplyToMessageID    int64  `json:"reply_to_message_id,omitempty"`
	DisableNotification bool   `json:"disable_notification,omitempty"`
}

func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*core.Message, error) {
	if req.ChatID == 0 {
		return nil, fmt.Errorf("telegram: chat id is required")
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("telegram: message text is required")
	}
	req.Text = truncate(req.Text, maxMessageRunes)
	if err := c.checkThrottle(ctx, MethodSendMessage); err != nil {
		return nil, err
	}
	return invoke(ctx, c, MethodSendMessage, req, c.requestTimeout, decodeJSON[*core.Message])
}

type AnswerCallbackQueryRequest struct {
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text,omitempty"`
	ShowAlert       bool   `json:"show_alert,omitempty"`
}

func (c *Client) AnswerCallbackQuery(ctx context.Context, req AnswerCallbackQueryRequest) (bool, error) {
	req.CallbackQueryID = strings.TrimSpace(req.CallbackQueryID)
	if req.CallbackQueryID == "" {
		return false, fmt.Errorf("telegram: callback query id is required")
	}
	if err := c.checkThrottle(ctx, MethodAnswerCallbackQuery); err != nil {
		return false, err
	}
	return invoke(ctx, c, MethodAnswerCallbackQuery, req, c.requestTimeout, decodeJSON[bool])
}

func (c *Client) checkThrottle(ctx context.Context, method string) error {
	if c == nil || !c.failFast || c.tracker == nil {
		return nil
	}
	return c.tracker.BeforeCall(ctx, method)
}

// Tracker exposes the throttle tracker, if configured.
func (c *Client) Tracker() *ratelimit.Tracker {
	if c == nil {
		return nil
	}
	return c.tracker
}

func invoke[T any](
	ctx context.Context,
	c *Client,
	method string,
	payload any,
	timeout time.Duration,
	decode call.Decoder[T],
) (T, error) {
	var zero T
	if c == nil {
		return zero, fmt.Errorf("telegram: client is nil")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return zero, fmt.Errorf("telegram: encode %s payload: %w", method, err)
	}
	attempt := func(ctx context.Context) (call.Response, error) {
		res, err := c.adapter.Do(ctx, transport.Request{
			Method:  http.MethodPost,
			URL:     c.methodURL(method),
			Body:    body,
			Timeout: timeout,
		})
		if err != nil {
			return call.Response{}, err
		}
		return interpret(method, res), nil
	}
	opts := []call.Option{
		call.WithMethod(method),
		call.WithStrict(c.strict),
		call.WithPolicy(c.policy),
		call.WithLogger(c.logger),
		call.WithMetricsRecorder(c.metrics),
		call.WithSleeper(c.sleep),
		call.WithReissueBackOff(c.newReissue),
	}
	if c.tracker != nil {
		opts = append(opts, call.WithThrottleObserver(c.tracker))
	}
	return call.Do(ctx, attempt, decode, opts...)
}

func (c *Client) methodURL(method string) string {
	return c.baseURL + "/bot" + c.token + "/" + method
}

type envelope struct {
	OK          bool                `json:"ok"`
	Result      json.RawMessage     `json:"result"`
	ErrorCode   int                 `json:"error_code"`
	Description string              `json:"description"`
	Parameters  *responseParameters `json:"parameters,omitempty"`
}

type responseParameters struct {
	RetryAfter      int   `json:"retry_after,omitempty"`
	MigrateToChatID int64 `json:"migrate_to_chat_id,omitempty"`
}

// interpret maps the Bot API envelope onto a call.Response. A server-supplied
// retry_after parameter is surfaced as a Retry-After header.
func interpret(method string, res transport.Response) call.Response {
	out := call.Response{
		Method:     method,
		StatusCode: res.StatusCode,
		Headers:    core.CloneTags(res.Headers),
	}
	var env envelope
	if err := json.Unmarshal(res.Body, &env); err != nil {
		if res.StatusCode >= 200 && res.StatusCode < 300 {
			out.StatusCode = http.StatusBadGateway
		}
		out.Description = strings.TrimSpace(string(res.Body))
		return out
	}
	out.Description = env.Description
	if env.Parameters != nil && env.Parameters.RetryAfter > 0 {
		out.Headers["Retry-After"] = strconv.Itoa(env.Parameters.RetryAfter)
	}
	if !env.OK {
		if env.ErrorCode > 0 {
			out.StatusCode = env.ErrorCode
		}
		if out.StatusCode >= 200 && out.StatusCode < 300 {
			out.StatusCode = http.StatusBadGateway
		}
		return out
	}
	if len(env.Result) > 0 && string(env.Result) != "null" {
		out.Body = env.Result
	}
	return out
}

func decodeJSON[T any](body []byte) (T, error) {
	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		return out, err
	}
	return out, nil
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}

var _ core.Source = (*Client)(nil)
