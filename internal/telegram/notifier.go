// Package telegram pushes run lifecycle notifications to a Telegram chat.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mtzanidakis/helios/internal/bus"
	"github.com/mtzanidakis/helios/internal/config"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/nats-io/nats.go"
)

// Notifier listens on the event bus and forwards terminal run events to the
// configured chat. It never blocks the engine: delivery failures are logged
// and dropped.
type Notifier struct {
	bot    *telego.Bot
	chatID int64
	sub    *nats.Subscription
}

func NewNotifier(cfg config.TelegramConfig) (*Notifier, error) {
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Notifier{bot: bot, chatID: cfg.ChatID}, nil
}

// Start subscribes to all project event topics. Only terminal events produce
// a message.
func (n *Notifier) Start(client *bus.Client) error {
	sub, err := client.Subscribe(bus.TopicEventsProject, func(msg *nats.Msg) {
		n.handleEvent(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe to events: %w", err)
	}
	n.sub = sub
	slog.Info("telegram notifier started", "chat_id", n.chatID)
	return nil
}

func (n *Notifier) Stop() {
	if n.sub != nil {
		_ = n.sub.Unsubscribe()
	}
}

func (n *Notifier) handleEvent(data []byte) {
	var event struct {
		Type      string `json:"type"`
		ProjectID string `json:"project_id"`
		Data      struct {
			FinalOutput string `json:"final_output"`
			Error       string `json:"error"`
			Role        string `json:"role"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &event); err != nil {
		return
	}

	var text string
	switch event.Type {
	case "run_completed":
		text = fmt.Sprintf("✅ Project %s completed.\n\n%s", event.ProjectID, event.Data.FinalOutput)
	case "run_failed":
		text = fmt.Sprintf("❌ Project %s failed at role %s:\n%s", event.ProjectID, event.Data.Role, event.Data.Error)
	default:
		return
	}

	if err := n.Send(context.Background(), text); err != nil {
		slog.Error("failed to send telegram notification", "project", event.ProjectID, "error", err)
	}
}

func (n *Notifier) Send(ctx context.Context, text string) error {
	for _, chunk := range chunkMessage(text, 4096) {
		if _, err := n.bot.SendMessage(ctx, tu.Message(tu.ID(n.chatID), chunk)); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}
	return nil
}
