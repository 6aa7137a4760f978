// Package eventlog holds the audit trail's optional downstream sinks:
// a throttled Telegram notifier for ops alerts, and a Kafka publisher
// for streaming domain events to external consumers.
package eventlog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/linkmeAman/universal-middleware/pkg/config"
	"github.com/linkmeAman/universal-middleware/pkg/logger"
	"go.uber.org/zap"
)

// Notifier sends short text alerts to Telegram, throttled per key so a
// flapping condition doesn't spam the channel. A no-op when disabled or
// unconfigured.
type Notifier struct {
	cfg    *config.Config
	log    *logger.Logger
	client *http.Client

	mu       sync.Mutex
	lastSent map[string]time.Time
}

func NewNotifier(cfg *config.Config, log *logger.Logger) *Notifier {
	return &Notifier{
		cfg:      cfg,
		log:      log,
		client:   &http.Client{Timeout: 10 * time.Second},
		lastSent: map[string]time.Time{},
	}
}

// Send posts text to the configured Telegram chat, throttled by key.
// Never returns an error to the caller; failures are logged.
func (n *Notifier) Send(ctx context.Context, text, throttleKey string) {
	if !n.cfg.TelegramNotifyEnabled {
		return
	}
	if n.cfg.TelegramBotToken == "" || n.cfg.TelegramChatID == "" {
		return
	}

	n.mu.Lock()
	throttle := time.Duration(n.cfg.TelegramThrottleSeconds) * time.Second
	last, ok := n.lastSent[throttleKey]
	if ok && time.Since(last) < throttle {
		n.mu.Unlock()
		return
	}
	n.lastSent[throttleKey] = time.Now()
	n.mu.Unlock()

	if len(text) > 4000 {
		text = text[:4000]
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.cfg.TelegramBotToken)
	body, err := json.Marshal(map[string]string{"chat_id": n.cfg.TelegramChatID, "text": text})
	if err != nil {
		n.log.Error("notify: marshal failed", zap.Error(err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		n.log.Error("notify: request build failed", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.log.Error("notify: send failed", zap.Error(err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		n.log.Warn("notify: non-200 response", zap.Int("status", resp.StatusCode))
	}
}
