package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Notifier POSTs event payloads to an external webhook. It runs in
// Background mode so a slow receiver never blocks the chat pipeline.
type Notifier struct {
	url     string
	client  *http.Client
	logger  *zap.Logger
	timeout time.Duration
}

// NewNotifier creates a Notifier for the given webhook URL.
func NewNotifier(url string, timeout time.Duration, logger *zap.Logger) *Notifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Notifier{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
		timeout: timeout,
	}
}

func (n *Notifier) Name() string { return "webhook:" + n.url }
func (n *Notifier) Mode() Mode   { return Background }

type notification struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// Handle sends the event as JSON. Failures are logged, not retried.
func (n *Notifier) Handle(ctx context.Context, event string, payload any) {
	body, err := json.Marshal(notification{Event: event, Payload: payload})
	if err != nil {
		n.logger.Error("marshal webhook payload", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		n.logger.Error("build webhook request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("webhook delivery failed",
			zap.String("event", event), zap.Error(err))
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		n.logger.Warn("webhook rejected",
			zap.String("event", event), zap.Int("status", resp.StatusCode))
	}
}
