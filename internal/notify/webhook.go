// Package notify delivers user notifications in-app and to chat webhooks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/novelmaze/novelmaze/internal/config"
	"github.com/novelmaze/novelmaze/internal/metrics"
	"github.com/novelmaze/novelmaze/internal/models"
	"github.com/novelmaze/novelmaze/pkg/logger"
)

const channelWebhook = "webhook"

// WebhookClient posts messages to a Mattermost-compatible incoming webhook.
type WebhookClient struct {
	webhookURL string
	channel    string
	enabled    bool
	http       *http.Client
	inflight   conc.WaitGroup
	log        *logger.Logger
}

// NewWebhookClient creates a new webhook client.
func NewWebhookClient(cfg *config.NotificationsConfig, log *logger.Logger) *WebhookClient {
	return &WebhookClient{
		webhookURL: cfg.WebhookURL,
		channel:    cfg.Channel,
		enabled:    cfg.WebhookEnable,
		http:       &http.Client{Timeout: 10 * time.Second},
		log:        log.Component("webhook"),
	}
}

// Message represents a webhook message payload.
type Message struct {
	Channel     string       `json:"channel,omitempty"`
	Username    string       `json:"username,omitempty"`
	Text        string       `json:"text,omitempty"`
	IconURL     string       `json:"icon_url,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment represents a message attachment.
type Attachment struct {
	Fallback string  `json:"fallback,omitempty"`
	Color    string  `json:"color,omitempty"`
	Title    string  `json:"title,omitempty"`
	Text     string  `json:"text,omitempty"`
	Fields   []Field `json:"fields,omitempty"`
	Footer   string  `json:"footer,omitempty"`
}

// Field represents an attachment field.
type Field struct {
	Short bool   `json:"short"`
	Title string `json:"title"`
	Value string `json:"value"`
}

// SendMessage posts a message to the webhook.
func (c *WebhookClient) SendMessage(ctx context.Context, msg *Message) error {
	if !c.enabled {
		c.log.Debug().Msg("Webhook is disabled, skipping message")
		return nil
	}

	if msg.Channel == "" {
		msg.Channel = c.channel
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message to webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	c.log.Debug().
		Str("channel", msg.Channel).
		Msg("Sent message to webhook")

	return nil
}

// Announce posts a notification to the webhook in the background. Delivery
// failures are logged and counted, never returned.
func (c *WebhookClient) Announce(ctx context.Context, n *models.Notification) {
	if !c.enabled {
		return
	}

	msg := messageFor(n)
	detached := context.WithoutCancel(ctx)
	c.inflight.Go(func() {
		if err := c.SendMessage(detached, msg); err != nil {
			metrics.RecordNotificationFailed(channelWebhook)
			c.log.Warn().Err(err).
				Str("user_id", n.UserID).
				Str("type", n.Type).
				Msg("Failed to announce notification")
			return
		}
		metrics.RecordNotificationSent(channelWebhook, n.Type)
	})
}

// Wait blocks until every background announcement has finished.
func (c *WebhookClient) Wait() {
	c.inflight.Wait()
}

func messageFor(n *models.Notification) *Message {
	color := "#3b82f6"
	icon := "🔔"
	switch n.Type {
	case models.NotificationAchievementUnlocked:
		color, icon = "#f59e0b", "🏆"
	case models.NotificationLevelUp:
		color, icon = "#10b981", "⬆️"
	case models.NotificationPurchaseCompleted:
		color, icon = "#8b5cf6", "🪙"
	}

	return &Message{
		Username: "NovelMaze",
		Attachments: []Attachment{{
			Fallback: fmt.Sprintf("%s %s", icon, n.Title),
			Color:    color,
			Title:    fmt.Sprintf("%s %s", icon, n.Title),
			Text:     n.Message,
			Fields: []Field{
				{Short: true, Title: "User", Value: n.UserID},
				{Short: true, Title: "Type", Value: n.Type},
			},
			Footer: "NovelMaze notifications",
		}},
	}
}
