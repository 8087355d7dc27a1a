package intercept

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ppiankov/sendtap/internal/host"
	"github.com/ppiankov/sendtap/internal/logstore"
	"github.com/ppiankov/sendtap/internal/metrics"
	"github.com/ppiankov/sendtap/internal/patch"
)

// SendMessage wraps the host's send function.
type SendMessage struct {
	store   *logstore.Store
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
}

// NewSendMessage creates a send-function interceptor appending to store.
// The filter option is ignored: every send is logged.
func NewSendMessage(store *logstore.Store, opts ...Option) *SendMessage {
	cfg := newTapConfig(opts)
	return &SendMessage{store: store, logger: cfg.logger, metrics: cfg.metrics}
}

// Install patches the send slot of sender. The edit slot is left alone.
func (s *SendMessage) Install(reg *patch.Registry, sender host.MessageSender) error {
	if sender == nil {
		return fmt.Errorf("%w: message sender", patch.ErrTargetUnavailable)
	}
	if _, err := patch.Apply(reg, sender.SendMessageSlot(), s.Wrap); err != nil {
		s.metrics.PatchFailed("sendMessage")
		return err
	}
	return nil
}

// Wrap returns a send function that logs the channel and message, calls
// original once with the same arguments and returns its result untouched.
func (s *SendMessage) Wrap(original host.SendMessageFunc) host.SendMessageFunc {
	return func(ctx context.Context, channelID string, msg *host.Message, opts *host.SendOptions) (*host.SendResult, error) {
		s.metrics.Observed(logstore.TagSendMessage)
		s.store.Append(logstore.TagSendMessage, fmt.Sprintf("Channel=%s, Message=%s", channelID, summarize(msg)))
		s.logger.Debugw("send intercepted", "channel", channelID, "nonce", nonceOf(opts))

		return original(ctx, channelID, msg, opts)
	}
}

func summarize(v any) string {
	out, err := encodeJSON(v)
	if err != nil {
		return truncate(fmt.Sprintf("%+v", v))
	}
	return truncate(out)
}

func nonceOf(opts *host.SendOptions) string {
	if opts == nil {
		return ""
	}
	return opts.Nonce
}
