package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/BradenHooton/warden/internal/models"
)

// SlackChannel posts alerts to a Slack incoming webhook
type SlackChannel struct {
	webhookURL string
	channel    string
	client     *http.Client
}

// NewSlackChannel creates a new Slack channel
func NewSlackChannel(webhookURL, channel string) *SlackChannel {
	return &SlackChannel{
		webhookURL: webhookURL,
		channel:    channel,
		client:     newHTTPClient(),
	}
}

func (s *SlackChannel) Name() string {
	return "slack"
}

func (s *SlackChannel) Send(ctx context.Context, alert *models.Alert) error {
	payload := map[string]interface{}{
		"channel":  s.channel,
		"username": "warden",
		"text":     subject(alert),
		"attachments": []map[string]interface{}{
			{
				"color":  severityColor(alert.Severity),
				"title":  subject(alert),
				"text":   alert.Description,
				"fields": slackFields(alert),
				"footer": fmt.Sprintf("Alert ID: %s", alert.ID),
				"ts":     alert.Timestamp.Unix(),
			},
		},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal slack payload: %w", err)
	}

	if err := postJSON(ctx, s.client, s.webhookURL, data, nil); err != nil {
		return fmt.Errorf("slack: %w", err)
	}
	return nil
}

func severityColor(sev models.Severity) string {
	switch sev {
	case models.SeverityCritical:
		return "#FF0000"
	case models.SeverityError:
		return "#FFA500"
	case models.SeverityWarning:
		return "#FFFF00"
	default:
		return "#808080"
	}
}

func slackFields(alert *models.Alert) []map[string]interface{} {
	fields := []map[string]interface{}{
		{"title": "Severity", "value": string(alert.Severity), "short": true},
		{"title": "Type", "value": string(alert.Type), "short": true},
	}
	if alert.TenantID != "" {
		fields = append(fields, map[string]interface{}{"title": "Tenant", "value": alert.TenantID, "short": true})
	}

	keys := make([]string, 0, len(alert.Metadata))
	for k := range alert.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, map[string]interface{}{
			"title": k,
			"value": fmt.Sprint(alert.Metadata[k]),
			"short": true,
		})
	}
	return fields
}
