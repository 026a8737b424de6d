package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-botpoll/call"
	"github.com/goliatone/go-botpoll/core"
	"github.com/goliatone/go-botpoll/ratelimit"
)

type apiCall struct {
	path string
	body map[string]any
}

type fakeBotAPI struct {
	mu        sync.Mutex
	calls     []apiCall
	responses []func(w http.ResponseWriter)
}

func (f *fakeBotAPI) handler(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	body := map[string]any{}
	_ = json.Unmarshal(raw, &body)
	f.mu.Lock()
	index := len(f.calls)
	f.calls = append(f.calls, apiCall{path: r.URL.Path, body: body})
	if index >= len(f.responses) {
		index = len(f.responses) - 1
	}
	respond := f.responses[index]
	f.mu.Unlock()
	respond(w)
}

func (f *fakeBotAPI) snapshot() []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]apiCall(nil), f.calls...)
}

func reply(status int, payload string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(payload))
	}
}

func newTestClient(t *testing.T, api *fakeBotAPI, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(api.handler))
	t.Cleanup(server.Close)
	client, err := NewClient(server.URL, "123:abc", opts...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func TestNewClient_RequiresBaseURLAndToken(t *testing.T) {
	if _, err := NewClient("", "t"); err == nil {
		t.Fatalf("expected base url error")
	}
	if _, err := NewClient("https://api.telegram.org", " "); err == nil {
		t.Fatalf("expected token error")
	}
}

func TestGetUpdates_SendsRequestParametersAndDecodesBatch(t *testing.T) {
	api := &fakeBotAPI{responses: []func(http.ResponseWriter){
		reply(http.StatusOK, `{"ok":true,"result":[
			{"update_id":41,"message":{"message_id":1,"date":1,"chat":{"id":9,"type":"private"},"text":"hi"}},
			{"update_id":42,"callback_query":{"id":"cb1","from":{"id":3,"is_bot":false,"first_name":"A"},"chat_instance":"i","data":"yes"}}
		]}`),
	}}
	client := newTestClient(t, api)

	updates, err := client.GetUpdates(context.Background(), core.UpdatesRequest{
		Offset:         41,
		HasOffset:      true,
		Limit:          10,
		TimeoutSeconds: 1,
		AllowedUpdates: []core.UpdateType{core.UpdateTypeMessage, core.UpdateTypeCallbackQuery},
	})
	if err != nil {
		t.Fatalf("get updates: %v", err)
	}
	if len(updates) != 2 || updates[0].UpdateID != 41 || updates[1].Kind() != core.UpdateTypeCallbackQuery {
		t.Fatalf("unexpected updates %+v", updates)
	}

	calls := api.snapshot()
	if len(calls) != 1 {
		t.Fatalf("expected one call, got %d", len(calls))
	}
	if calls[0].path != "/bot123:abc/getUpdates" {
		t.Fatalf("unexpected path %q", calls[0].path)
	}
	body := calls[0].body
	if body["offset"] != float64(41) || body["limit"] != float64(10) || body["timeout"] != float64(1) {
		t.Fatalf("unexpected request body %#v", body)
	}
	allowed, _ := body["allowed_updates"].([]any)
	if len(allowed) != 2 || allowed[0] != "message" {
		t.Fatalf("unexpected allowed_updates %#v", body["allowed_updates"])
	}
}

func TestGetUpdates_OmitsUnsetOffsetAndFilter(t *testing.T) {
	api := &fakeBotAPI{responses: []func(http.ResponseWriter){reply(http.StatusOK, `{"ok":true,"result":[]}`)}}
	client := newTestClient(t, api)

	updates, err := client.GetUpdates(context.Background(), core.UpdatesRequest{TimeoutSeconds: 1})
	if err != nil {
		t.Fatalf("get updates: %v", err)
	}
	if len(updates) != 0 {
		t.Fatalf("expected empty batch, got %d", len(updates))
	}
	body := api.snapshot()[0].body
	if _, ok := body["offset"]; ok {
		t.Fatalf("expected offset omitted, got %#v", body)
	}
	if _, ok := body["allowed_updates"]; ok {
		t.Fatalf("expected allowed_updates omitted, got %#v", body)
	}
}

func TestGetUpdates_RateLimitIsTransparent(t *testing.T) {
	api := &fakeBotAPI{responses: []func(http.ResponseWriter){
		reply(http.StatusTooManyRequests, `{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 7","parameters":{"retry_after":7}}`),
		reply(http.StatusOK, `{"ok":true,"result":[{"update_id":1,"message":{"message_id":1,"date":1,"chat":{"id":1,"type":"private"}}}]}`),
	}}
	sleeper := &recordingSleeper{}
	tracker := ratelimit.NewTracker("bot", nil)
	client := newTestClient(t, api, WithSleeper(sleeper.sleep), WithTracker(tracker))

	updates, err := client.GetUpdates(context.Background(), core.UpdatesRequest{TimeoutSeconds: 1})
	if err != nil {
		t.Fatalf("expected transparent rate limit, got %v", err)
	}
	if len(updates) != 1 {
		t.Fatalf("expected batch after wait, got %d", len(updates))
	}
	if len(sleeper.delays) != 1 || sleeper.delays[0] != 7*time.Second {
		t.Fatalf("expected 7s wait, got %v", sleeper.delays)
	}
	states, _ := tracker.Snapshot(context.Background())
	if len(states) != 1 || states[0].Throttles != 1 || states[0].Key.Method != MethodGetUpdates {
		t.Fatalf("expected recorded throttle, got %+v", states)
	}
}

func TestGetUpdates_ConflictIsTerminal(t *testing.T) {
	api := &fakeBotAPI{responses: []func(http.ResponseWriter){
		reply(http.StatusConflict, `{"ok":false,"error_code":409,"description":"Conflict: terminated by other getUpdates request"}`),
	}}
	client := newTestClient(t, api)

	_, err := client.GetUpdates(context.Background(), core.UpdatesRequest{TimeoutSeconds: 1})
	var apiErr *call.APIError
	if !errors.As(err, &apiErr) || !apiErr.Conflict() {
		t.Fatalf("expected conflict api error, got %v", err)
	}
	if !strings.Contains(apiErr.Description, "terminated by other getUpdates") {
		t.Fatalf("expected description carried, got %q", apiErr.Description)
	}
	if len(api.snapshot()) != 1 {
		t.Fatalf("expected a single attempt")
	}
}

func TestGetUpdates_ServerErrorReissuedWhenNotStrict(t *testing.T) {
	api := &fakeBotAPI{responses: []func(http.ResponseWriter){
		reply(http.StatusBadGateway, `<html>bad gateway</html>`),
		reply(http.StatusOK, `{"ok":true,"result":[]}`),
	}}
	client := newTestClient(t, api, WithReissueBackOff(nil))

	if _, err := client.GetUpdates(context.Background(), core.UpdatesRequest{TimeoutSeconds: 1}); err != nil {
		t.Fatalf("expected reissue to recover, got %v", err)
	}
	if len(api.snapshot()) != 2 {
		t.Fatalf("expected two attempts, got %d", len(api.snapshot()))
	}
}

func TestGetWebhookInfo_DecodesStatus(t *testing.T) {
	api := &fakeBotAPI{responses: []func(http.ResponseWriter){
		reply(http.StatusOK, `{"ok":true,"result":{"url":"https://example.com/hook","has_custom_certificate":false,"pending_update_count":3}}`),
	}}
	client := newTestClient(t, api)

	status, err := client.GetStatus(context.Background())
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if !status.WebhookActive() || status.PendingUpdateCount != 3 {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestGetMe_MissingResultIsTerminal(t *testing.T) {
	api := &fakeBotAPI{responses: []func(http.ResponseWriter){reply(http.StatusOK, `{"ok":true}`)}}
	client := newTestClient(t, api)

	if _, err := client.GetMe(context.Background()); !errors.Is(err, call.ErrMissingBody) {
		t.Fatalf("expected missing body, got %v", err)
	}
}

func TestSendMessage_ValidatesAndTruncates(t *testing.T) {
	api := &fakeBotAPI{responses: []func(http.ResponseWriter){
		reply(http.StatusOK, `{"ok":true,"result":{"message_id":5,"date":1,"chat":{"id":7,"type":"private"},"text":"ok"}}`),
	}}
	client := newTestClient(t, api)

	if _, err := client.SendMessage(context.Background(), SendMessageRequest{Text: "x"}); err == nil {
		t.Fatalf("expected chat id error")
	}
	msg, err := client.SendMessage(context.Background(), SendMessageRequest{ChatID: 7, Text: strings.Repeat("a", maxMessageRunes+10)})
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	if msg.MessageID != 5 {
		t.Fatalf("expected message id 5, got %d", msg.MessageID)
	}
	sent, _ := api.snapshot()[0].body["text"].(string)
	if len(sent) != maxMessageRunes {
		t.Fatalf("expected text truncated to %d, got %d", maxMessageRunes, len(sent))
	}
}

func TestAnswerCallbackQuery(t *testing.T) {
	api := &fakeBotAPI{responses: []func(http.ResponseWriter){reply(http.StatusOK, `{"ok":true,"result":true}`)}}
	client := newTestClient(t, api)

	answered, err := client.AnswerCallbackQuery(context.Background(), AnswerCallbackQueryRequest{CallbackQueryID: "cb1"})
	if err != nil || !answered {
		t.Fatalf("expected answered callback, got %v %v", answered, err)
	}
	if api.snapshot()[0].body["callback_query_id"] != "cb1" {
		t.Fatalf("unexpected body %#v", api.snapshot()[0].body)
	}
}

func TestSendMessage_FailFastDuringThrottleWindow(t *testing.T) {
	api := &fakeBotAPI{responses: []func(http.ResponseWriter){
		reply(http.StatusOK, `{"ok":true,"result":{"message_id":9,"date":1,"chat":{"id":7,"type":"private"},"text":"ok"}}`),
	}}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tracker := ratelimit.NewTracker("bot", nil)
	tracker.Now = func() time.Time { return now }
	if err := tracker.Throttled(context.Background(), MethodSendMessage, 5*time.Second); err != nil {
		t.Fatalf("record throttle: %v", err)
	}
	client := newTestClient(t, api, WithTracker(tracker), WithFailFastThrottled(true))

	_, err := client.SendMessage(context.Background(), SendMessageRequest{ChatID: 7, Text: "hi"})
	var throttled ratelimit.ThrottledError
	if !errors.As(err, &throttled) || throttled.RetryAfter != 5*time.Second {
		t.Fatalf("expected throttled error with 5s remaining, got %v", err)
	}
	if len(api.snapshot()) != 0 {
		t.Fatalf("expected no request while throttled, got %d", len(api.snapshot()))
	}

	now = now.Add(6 * time.Second)
	msg, err := client.SendMessage(context.Background(), SendMessageRequest{ChatID: 7, Text: "hi"})
	if err != nil || msg.MessageID != 9 {
		t.Fatalf("expected send after window lapsed, got %+v %v", msg, err)
	}
}

func TestSendMessage_ThrottleWindowIgnoredByDefault(t *testing.T) {
	api := &fakeBotAPI{responses: []func(http.ResponseWriter){
		reply(http.StatusOK, `{"ok":true,"result":{"message_id":9,"date":1,"chat":{"id":7,"type":"private"},"text":"ok"}}`),
	}}
	tracker := ratelimit.NewTracker("bot", nil)
	if err := tracker.Throttled(context.Background(), MethodSendMessage, time.Minute); err != nil {
		t.Fatalf("record throttle: %v", err)
	}
	client := newTestClient(t, api, WithTracker(tracker))
	if _, err := client.SendMessage(context.Background(), SendMessageRequest{ChatID: 7, Text: "hi"}); err != nil {
		t.Fatalf("expected send without fail-fast, got %v", err)
	}
}
