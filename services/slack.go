package services

import (
	"context"
	"fmt"
	"time"

	"github.com/oneclickdz/ocpay-reconciler/types"
	fastshot "github.com/opus-domini/fast-shot"
)

// SlackService posts admin alerts to an incoming webhook. An empty URL disables it.
type SlackService struct {
	SlackWebhookURL string
}

func NewSlackService(webhookURL string) *SlackService {
	return &SlackService{
		SlackWebhookURL: webhookURL,
	}
}

func section(text string) map[string]interface{} {
	return map[string]interface{}{
		"type": "section",
		"text": map[string]interface{}{
			"type": "mrkdwn",
			"text": text,
		},
	}
}

func (s *SlackService) post(ctx context.Context, blocks []map[string]interface{}) error {
	if s.SlackWebhookURL == "" {
		return nil
	}

	res, err := fastshot.NewClient(s.SlackWebhookURL).
		Config().SetTimeout(10*time.Second).
		Header().Add("Content-Type", "application/json").
		Build().POST("").
		Context().Set(ctx).
		Body().AsJSON(map[string]interface{}{"blocks": blocks}).
		Send()
	if err != nil {
		return fmt.Errorf("failed to send Slack notification: %w", err)
	}
	defer res.RawResponse.Body.Close()

	if res.StatusCode() >= 300 {
		return fmt.Errorf("slack webhook returned status %d", res.StatusCode())
	}
	return nil
}

// SendPaymentFailedAlert tells the admins an order was put on hold after a failed payment
func (s *SlackService) SendPaymentFailedAlert(ctx context.Context, event types.PaymentEvent) error {
	return s.post(ctx, []map[string]interface{}{
		section(":x: *OCPay payment failed*"),
		section(fmt.Sprintf("*Order:* #%s", event.OrderID)),
		section(fmt.Sprintf("*Payment Reference:* %s", event.PaymentRef)),
		section(fmt.Sprintf("*Amount:* %s %s", event.Total.StringFixed(2), event.Currency)),
		section(fmt.Sprintf("*Customer:* %s %s", event.BillingName, event.BillingEmail)),
		section(fmt.Sprintf("*Status:* %s", event.Status)),
		section(fmt.Sprintf("*Timestamp:* %s", event.OccurredAt.UTC().Format(time.RFC1123))),
	})
}

// SendSweepAlert reports a sweep that ended with per-order errors or aborted
func (s *SlackService) SendSweepAlert(ctx context.Context, stats types.SweepStats) error {
	blocks := []map[string]interface{}{
		section(fmt.Sprintf(":warning: *OCPay %s sweep finished with errors*", stats.Tier)),
		section(fmt.Sprintf("*Checked:* %d  *Updated:* %d  *Errors:* %d", stats.Checked, stats.Updated, stats.Errors)),
	}
	if stats.Error != "" {
		blocks = append(blocks, section(fmt.Sprintf("*Error:* %s", stats.Error)))
	}
	blocks = append(blocks, section(fmt.Sprintf("*Started:* %s", stats.StartedAt.UTC().Format(time.RFC1123))))

	return s.post(ctx, blocks)
}
