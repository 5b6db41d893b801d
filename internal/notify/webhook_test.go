package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novelmaze/novelmaze/internal/config"
	"github.com/novelmaze/novelmaze/internal/metrics"
	"github.com/novelmaze/novelmaze/internal/models"
	"github.com/novelmaze/novelmaze/pkg/logger"
)

type webhookRecorder struct {
	mu       sync.Mutex
	messages []Message
	status   int
}

func (r *webhookRecorder) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, "application/json", req.Header.Get("Content-Type"))

		var msg Message
		if err := json.NewDecoder(req.Body).Decode(&msg); err != nil {
			t.Errorf("failed to decode payload: %v", err)
		}
		r.mu.Lock()
		r.messages = append(r.messages, msg)
		r.mu.Unlock()

		if r.status != 0 {
			w.WriteHeader(r.status)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func newWebhook(t *testing.T, rec *webhookRecorder, enabled bool) *WebhookClient {
	t.Helper()
	server := httptest.NewServer(rec.handler(t))
	t.Cleanup(server.Close)

	return NewWebhookClient(&config.NotificationsConfig{
		WebhookURL:    server.URL,
		Channel:       "novelmaze",
		WebhookEnable: enabled,
	}, logger.Nop())
}

func TestSendMessage_UsesDefaultChannel(t *testing.T) {
	rec := &webhookRecorder{}
	client := newWebhook(t, rec, true)

	err := client.SendMessage(context.Background(), &Message{Text: "hello"})
	require.NoError(t, err)

	require.Len(t, rec.messages, 1)
	assert.Equal(t, "novelmaze", rec.messages[0].Channel)
	assert.Equal(t, "hello", rec.messages[0].Text)
}

func TestSendMessage_Disabled(t *testing.T) {
	rec := &webhookRecorder{}
	client := newWebhook(t, rec, false)

	require.NoError(t, client.SendMessage(context.Background(), &Message{Text: "hello"}))
	assert.Empty(t, rec.messages)
}

func TestSendMessage_ErrorStatus(t *testing.T) {
	rec := &webhookRecorder{status: http.StatusInternalServerError}
	client := newWebhook(t, rec, true)

	err := client.SendMessage(context.Background(), &Message{Text: "hello"})
	assert.ErrorContains(t, err, "status 500")
}

func TestAnnounce_FormatsNotification(t *testing.T) {
	rec := &webhookRecorder{}
	client := newWebhook(t, rec, true)
	before := testutil.ToFloat64(metrics.NotificationsSentTotal.WithLabelValues(channelWebhook, models.NotificationLevelUp))

	client.Announce(context.Background(), &models.Notification{
		UserID:  "user-1",
		Type:    models.NotificationLevelUp,
		Title:   "Level 3 reached",
		Message: "You are now level 3.",
	})
	client.Wait()

	require.Len(t, rec.messages, 1)
	msg := rec.messages[0]
	require.Len(t, msg.Attachments, 1)
	assert.Contains(t, msg.Attachments[0].Title, "Level 3 reached")
	assert.Equal(t, "You are now level 3.", msg.Attachments[0].Text)
	assert.Equal(t, "user-1", msg.Attachments[0].Fields[0].Value)

	after := testutil.ToFloat64(metrics.NotificationsSentTotal.WithLabelValues(channelWebhook, models.NotificationLevelUp))
	assert.Equal(t, before+1, after)
}

func TestAnnounce_FailureIsCounted(t *testing.T) {
	rec := &webhookRecorder{status: http.StatusBadGateway}
	client := newWebhook(t, rec, true)
	before := testutil.ToFloat64(metrics.NotificationsFailedTotal.WithLabelValues(channelWebhook))

	client.Announce(context.Background(), &models.Notification{UserID: "user-1", Type: models.NotificationPurchaseCompleted})
	client.Wait()

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.NotificationsFailedTotal.WithLabelValues(channelWebhook)))
}
