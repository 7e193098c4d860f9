// Package notify posts operator alerts for failed jobs and runs.
package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"docflow/internal/pkg/httpclient"
)

// Notifier raises operator-visible alerts. Implementations must not block
// the caller on delivery failures; alerting is best-effort.
type Notifier interface {
	JobFailed(subjectID, jobID uint, reason string)
	RunFailed(subjectID, runID uint, reason string)
}

// TelegramNotifier sends alerts to an operator chat via the Bot API.
type TelegramNotifier struct {
	http   *httpclient.Client
	chatID string
	logger *zap.Logger
}

// NewTelegram builds a Telegram notifier. An empty token yields a no-op
// notifier so callers never need to nil-check.
func NewTelegram(token, chatID string, logger *zap.Logger) Notifier {
	if token == "" || chatID == "" {
		return nopNotifier{}
	}
	return &TelegramNotifier{
		http:   httpclient.New().WithBaseURL("https://api.telegram.org/bot" + token),
		chatID: chatID,
		logger: logger,
	}
}

func (n *TelegramNotifier) JobFailed(subjectID, jobID uint, reason string) {
	n.send(fmt.Sprintf("⚠️ Scheduled generation failed\nclient: %d\njob: %d\nreason: %s", subjectID, jobID, reason))
}

func (n *TelegramNotifier) RunFailed(subjectID, runID uint, reason string) {
	n.send(fmt.Sprintf("⚠️ Generation run failed\nclient: %d\nrun: %d\nreason: %s", subjectID, runID, reason))
}

func (n *TelegramNotifier) send(text string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, err := n.http.PostJSON(ctx, "/sendMessage", map[string]interface{}{
			"chat_id": n.chatID,
			"text":    text,
		})
		if err != nil {
			n.logger.Warn("Failed to deliver operator alert", zap.Error(err))
		}
	}()
}

type nopNotifier struct{}

func (nopNotifier) JobFailed(uint, uint, string) {}
func (nopNotifier) RunFailed(uint, uint, string) {}
