package notify

import (
	"context"
	"fmt"
	"io"
	"sync"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/xceleratortech/communitiesx/pkg/config"
)

// PushSender delivers one payload to one subscription and reports the
// provider's HTTP status. Implementations must be safe for concurrent
// use.
type PushSender interface {
	// Send returns the provider status code. A zero status with a
	// non-nil error means the request never reached the provider.
	Send(ctx context.Context, sub *PushSubscription, payload []byte) (int, error)
	// Enabled reports whether delivery credentials are configured.
	Enabled() bool
}

// WebPushSender sends messages through the Web Push protocol with VAPID
// authentication. Credentials can be swapped at runtime when the config
// overlay rotates them.
type WebPushSender struct {
	mu  sync.RWMutex
	cfg config.PushConfig
}

// NewWebPushSender creates a sender with the given credentials.
func NewWebPushSender(cfg config.PushConfig) *WebPushSender {
	return &WebPushSender{cfg: cfg}
}

// Enabled reports whether VAPID credentials are present.
func (s *WebPushSender) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Enabled()
}

// UpdateCredentials replaces the push configuration. In-flight sends
// finish with the credentials they started with.
func (s *WebPushSender) UpdateCredentials(cfg config.PushConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

// Send delivers the payload to a single subscription.
func (s *WebPushSender) Send(ctx context.Context, sub *PushSubscription, payload []byte) (int, error) {
	s.mu.RLock()
	cfg := s.cfg
	s.mu.RUnlock()

	if !cfg.Enabled() {
		return 0, fmt.Errorf("push credentials not configured")
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		Subscriber:      cfg.Subject,
		VAPIDPublicKey:  cfg.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.VAPIDPrivateKey,
		TTL:             cfg.TTL,
	})
	if err != nil {
		return 0, fmt.Errorf("push send failed: %w", err)
	}
	defer resp.Body.Close()
	// Drain so the transport can reuse the connection.
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}
