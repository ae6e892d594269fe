package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"medication-reminder-backend/config"
	"medication-reminder-backend/internal/model"
	"medication-reminder-backend/internal/store"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(ctx context.Context, payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(ctx context.Context, payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotificationWithContext(ctx, payload, sub, options)
}

// Message is the JSON body delivered to the service worker.
type Message struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// WebPush delivers messages to every push subscription a user registered.
type WebPush struct {
	store   store.Store
	options *webpush.Options
	sender  NotificationSender
	log     *zap.Logger
}

// Options builds the VAPID options shared by the sender and the public key
// endpoint. Each send is bounded by cfg.Timeout.
func Options(cfg config.PushConfig) *webpush.Options {
	return &webpush.Options{
		HTTPClient:      &http.Client{Timeout: cfg.Timeout},
		Subscriber:      cfg.Subject,
		VAPIDPublicKey:  cfg.PublicKey,
		VAPIDPrivateKey: cfg.PrivateKey,
		TTL:             cfg.TTL,
		Urgency:         webpush.UrgencyHigh,
	}
}

// NewWebPush creates a push deliverer backed by the real webpush client.
func NewWebPush(st store.Store, options *webpush.Options, log *zap.Logger) *WebPush {
	return &WebPush{
		store:   st,
		options: options,
		sender:  &WebPushSender{}, // Use the real sender by default
		log:     log,
	}
}

// Configured reports whether VAPID keys are present.
func (w *WebPush) Configured() bool {
	return w.options != nil && w.options.VAPIDPublicKey != "" && w.options.VAPIDPrivateKey != ""
}

// Deliver sends msg to all of the user's subscriptions and returns how many
// accepted it. Expired subscriptions are deleted. An error is returned only
// when the user has subscriptions and none could be reached.
func (w *WebPush) Deliver(ctx context.Context, userID string, msg Message) (int, error) {
	if !w.Configured() {
		w.log.Debug("push is not configured, skipping", zap.String("user_id", userID))
		return 0, nil
	}

	subscriptions, err := w.store.ListSubscriptions(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(subscriptions) == 0 {
		w.log.Debug("no push subscriptions for user", zap.String("user_id", userID))
		return 0, nil
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("failed to encode push message: %w", err)
	}

	sent := 0
	var lastErr error
	for _, sub := range subscriptions {
		if err := w.sendNotification(ctx, sub, payload); err != nil {
			lastErr = err
			continue
		}
		sent++
	}
	if sent == 0 && lastErr != nil {
		return 0, lastErr
	}
	return sent, nil
}

// sendNotification sends a single web push notification.
func (w *WebPush) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) error {
	// Manually construct the webpush.Subscription object
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := w.sender.Send(ctx, payload, wpSub, w.options)
	if err != nil {
		w.log.Warn("error sending push notification", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		return fmt.Errorf("failed to send push to %s: %w", sub.Endpoint, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
		// Handle expired subscriptions
		w.log.Info("push subscription expired, deleting", zap.String("endpoint", sub.Endpoint))
		if err := w.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			w.log.Error("failed to delete expired subscription", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		}
		return fmt.Errorf("push subscription %s expired", sub.Endpoint)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("push service rejected %s with status %d", sub.Endpoint, resp.StatusCode)
	}
	return nil
}
