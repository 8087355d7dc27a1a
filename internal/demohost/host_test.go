package demohost

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ppiankov/sendtap/internal/host"
	"github.com/ppiankov/sendtap/internal/patch"
)

const testToken = "Bearer aaa.eyJ1c2VyX2lkIjoiNDIifQ.ccc"

func newTestHost(t *testing.T, opts ...Option) (*Host, *API) {
	t.Helper()
	api := NewAPI()
	opts = append([]Option{WithClient(InProcess(api)), WithToken(testToken)}, opts...)
	return New("https://chat.example", opts...), api
}

func TestSendMessagePostsThroughFetch(t *testing.T) {
	h, api := newTestHost(t)

	res, err := h.SendMessage(context.Background(), "123", &host.Message{Content: "hi"}, &host.SendOptions{Nonce: "n1"})
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusOK || res.ChannelID != "123" || res.ID == "" {
		t.Errorf("unexpected result %+v", res)
	}

	got := api.Received()
	if len(got) != 1 {
		t.Fatalf("expected 1 request, got %d", len(got))
	}
	if got[0].Method != http.MethodPost || got[0].Path != "/api/v9/channels/123/messages" {
		t.Errorf("unexpected request %s %s", got[0].Method, got[0].Path)
	}
	if got[0].Authorization != testToken {
		t.Errorf("expected token forwarded, got %q", got[0].Authorization)
	}
	var body map[string]any
	json.Unmarshal(got[0].Body, &body)
	if body["content"] != "hi" || body["nonce"] != "n1" {
		t.Errorf("unexpected body %s", got[0].Body)
	}
}

func TestSendMessageDispatchesEvent(t *testing.T) {
	h, _ := newTestHost(t)
	var seen []string
	h.AddInterceptor(func(ev host.Event) bool {
		seen = append(seen, ev.Type)
		return false
	})

	h.SendMessage(context.Background(), "1", &host.Message{Content: "x"}, nil)

	if len(seen) != 1 || seen[0] != "MESSAGE_CREATE" {
		t.Errorf("interceptor saw %v", seen)
	}
	if len(h.Events()) != 1 {
		t.Errorf("expected event delivered, got %d", len(h.Events()))
	}
}

func TestInterceptorCanConsumeEvent(t *testing.T) {
	h, _ := newTestHost(t)
	h.AddInterceptor(func(host.Event) bool { return true })

	h.Dispatch(host.Event{Type: "TYPING_START"})
	if len(h.Events()) != 0 {
		t.Error("consumed event must not be delivered")
	}
}

func TestSendMessageAPIError(t *testing.T) {
	h, _ := newTestHost(t)

	res, err := h.SendMessage(context.Background(), "1", &host.Message{}, nil)
	if !errors.Is(err, ErrStatus) {
		t.Fatalf("expected ErrStatus, got %v", err)
	}
	if res == nil || res.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 result, got %+v", res)
	}
}

func TestUnauthorizedWithoutToken(t *testing.T) {
	api := NewAPI()
	h := New("https://chat.example", WithClient(InProcess(api)))

	res, err := h.SendMessage(context.Background(), "1", &host.Message{Content: "x"}, nil)
	if !errors.Is(err, ErrStatus) || res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v, %v", res, err)
	}
}

func TestEditMessageUsesRequestObject(t *testing.T) {
	h, api := newTestHost(t)

	var opened []string
	_, err := patch.Apply(patch.NewRegistry(), h.request, func(next host.RequestFactory) host.RequestFactory {
		return func() host.Request {
			return &spyRequest{Request: next(), opened: &opened}
		}
	})
	if err != nil {
		t.Fatal(err)
	}

	res, err := h.EditMessage(context.Background(), "7", "m1", &host.Message{Content: "edited"})
	if err != nil {
		t.Fatal(err)
	}
	if res.ID != "m1" {
		t.Errorf("unexpected result %+v", res)
	}
	if len(opened) != 1 || opened[0] != "PATCH https://chat.example/api/v9/channels/7/messages/m1" {
		t.Errorf("request object not used: %v", opened)
	}
	if got := api.Received(); len(got) != 1 || got[0].Method != http.MethodPatch {
		t.Errorf("unexpected received %+v", got)
	}
}

type spyRequest struct {
	host.Request
	opened *[]string
}

func (s *spyRequest) Open(method, target string) error {
	*s.opened = append(*s.opened, method+" "+target)
	return s.Request.Open(method, target)
}

func TestTypingUsesNonMessagePath(t *testing.T) {
	h, api := newTestHost(t)
	if err := h.Typing(context.Background(), "5"); err != nil {
		t.Fatal(err)
	}
	if got := api.Received(); len(got) != 1 || got[0].Path != "/api/v9/channels/5/typing" {
		t.Errorf("unexpected received %+v", got)
	}
}

func TestModulesResolveByCapability(t *testing.T) {
	h, _ := newTestHost(t)
	caps := host.Resolve(h.Modules()...)

	if caps.Messages == nil || caps.Network == nil || caps.Dispatcher == nil {
		t.Fatalf("expected messages, network and dispatcher, got %+v", caps.Presence())
	}
	if caps.Storage != nil {
		t.Error("storage was not configured")
	}
}

func TestDetachedHostRefusesCalls(t *testing.T) {
	h, _ := newTestHost(t)
	h.Detach()

	if _, err := h.SendMessage(context.Background(), "1", &host.Message{Content: "x"}, nil); !errors.Is(err, patch.ErrTargetUnavailable) {
		t.Errorf("expected ErrTargetUnavailable, got %v", err)
	}
	if _, err := h.EditMessage(context.Background(), "1", "2", nil); !errors.Is(err, patch.ErrTargetUnavailable) {
		t.Errorf("expected ErrTargetUnavailable, got %v", err)
	}
}

func TestRealServer(t *testing.T) {
	srv := httptest.NewServer(NewAPI())
	defer srv.Close()

	h := New(srv.URL, WithClient(srv.Client()), WithToken(testToken))
	if _, err := h.SendMessage(context.Background(), "9", &host.Message{Content: "over tcp"}, nil); err != nil {
		t.Fatal(err)
	}
}

func TestRequestSendBeforeOpen(t *testing.T) {
	h, _ := newTestHost(t)
	factory, _ := h.request.Load()
	if _, err := factory().Send(context.Background(), nil); !errors.Is(err, errNotOpened) {
		t.Errorf("expected errNotOpened, got %v", err)
	}
}

func TestCancelledContext(t *testing.T) {
	h, _ := newTestHost(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.SendMessage(ctx, "1", &host.Message{Content: "x"}, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
