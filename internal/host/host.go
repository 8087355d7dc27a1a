// Package host defines the capabilities sendtap consumes from the
// application it is embedded in. Modules are matched by the interfaces they
// satisfy, never by name, and resolution happens once per session.
package host

import (
	"context"
	"net/http"

	"github.com/ppiankov/sendtap/internal/patch"
)

// Message is the payload handed to the host's send function.
type Message struct {
	Content string  `json:"content"`
	TTS     bool    `json:"tts"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

// Embed is an optional rich block attached to a message.
type Embed struct {
	Title       string      `json:"title,omitempty"`
	Description string      `json:"description,omitempty"`
	Image       *EmbedImage `json:"image,omitempty"`
}

// EmbedImage references an image by URL.
type EmbedImage struct {
	URL string `json:"url"`
}

// SendOptions carries per-send metadata.
type SendOptions struct {
	Nonce string `json:"nonce,omitempty"`
}

// SendResult is whatever the host returns from a send.
type SendResult struct {
	ID         string `json:"id"`
	ChannelID  string `json:"channel_id"`
	StatusCode int    `json:"status_code"`
}

// SendMessageFunc is the host's send function.
type SendMessageFunc func(ctx context.Context, channelID string, msg *Message, opts *SendOptions) (*SendResult, error)

// EditMessageFunc is the host's edit function. It is resolved but never wrapped.
type EditMessageFunc func(ctx context.Context, channelID, messageID string, msg *Message) (*SendResult, error)

// FetchOptions is the options bundle of the single-call request primitive.
type FetchOptions struct {
	Method string
	Header http.Header
	Body   []byte
}

// FetchFunc is the single-call request primitive.
type FetchFunc func(ctx context.Context, target string, opts *FetchOptions) (*http.Response, error)

// Request is the two-phase request primitive: Open configures the call,
// Send dispatches it.
type Request interface {
	Open(method, target string) error
	SetHeader(name, value string)
	Send(ctx context.Context, body []byte) (*http.Response, error)
}

// RequestFactory creates request objects.
type RequestFactory func() Request

// Event is a host dispatcher event.
type Event struct {
	Type    string
	Payload map[string]any
}

// MessageSender exposes the host's send and edit functions.
type MessageSender interface {
	SendMessageSlot() patch.Slot[SendMessageFunc]
	EditMessageSlot() patch.Slot[EditMessageFunc]
}

// EventDispatcher exposes the host's event bus and its interceptor hook.
type EventDispatcher interface {
	Dispatch(ev Event) error
	AddInterceptor(fn func(ev Event) bool)
}

// NetworkLayer exposes the two host-wide outbound request primitives.
type NetworkLayer interface {
	FetchSlot() patch.Slot[FetchFunc]
	RequestSlot() patch.Slot[RequestFactory]
}

// KVStore is scoped key-value persistence. Get returns ok=false for a
// namespace that was never written.
type KVStore interface {
	Get(ctx context.Context, namespace string) (value []byte, ok bool, err error)
	Put(ctx context.Context, namespace string, value []byte) error
}
