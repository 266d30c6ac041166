package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/BradenHooton/warden/internal/models"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESAPI is the subset of the SES client used for alert email
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESChannel emails alerts through AWS SES
type SESChannel struct {
	client      SESAPI
	fromAddress string
	recipients  []string
	logger      *slog.Logger
}

// NewSESChannel creates an SES channel using the default AWS credential chain
func NewSESChannel(ctx context.Context, region, fromAddress string, recipients []string, logger *slog.Logger) (*SESChannel, error) {
	cfg, err := loadAWSConfig(ctx, region)
	if err != nil {
		return nil, err
	}
	return NewSESChannelWithClient(ses.NewFromConfig(cfg), fromAddress, recipients, logger), nil
}

// NewSESChannelWithClient creates an SES channel on an existing client
func NewSESChannelWithClient(client SESAPI, fromAddress string, recipients []string, logger *slog.Logger) *SESChannel {
	return &SESChannel{
		client:      client,
		fromAddress: fromAddress,
		recipients:  recipients,
		logger:      logger,
	}
}

func (s *SESChannel) Name() string {
	return "email"
}

func (s *SESChannel) Send(ctx context.Context, alert *models.Alert) error {
	if len(s.recipients) == 0 {
		return fmt.Errorf("email: no recipients configured")
	}

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: s.recipients,
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject(alert)),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(alertHTML(alert)),
				},
				Text: &types.Content{
					Data: aws.String(alertText(alert)),
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("email: failed to send via SES: %w", err)
	}

	s.logger.Info("alert email sent",
		slog.String("alert_id", alert.ID.String()),
		slog.Int("recipients", len(s.recipients)),
		slog.String("message_id", aws.ToString(result.MessageId)))
	return nil
}

func sortedMetadata(alert *models.Alert) [][2]string {
	keys := make([]string, 0, len(alert.Metadata))
	for k := range alert.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([][2]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, [2]string{k, fmt.Sprint(alert.Metadata[k])})
	}
	return out
}

func alertText(alert *models.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n%s\n\n", subject(alert), alert.Description)
	fmt.Fprintf(&b, "Alert ID: %s\nTime: %s\n", alert.ID, alert.Timestamp.UTC().Format(time.RFC3339))
	if alert.TenantID != "" {
		fmt.Fprintf(&b, "Tenant: %s\n", alert.TenantID)
	}
	for _, kv := range sortedMetadata(alert) {
		fmt.Fprintf(&b, "%s: %s\n", kv[0], kv[1])
	}
	b.WriteString("\nThis is an automated message from the security monitor.\n")
	return b.String()
}

func alertHTML(alert *models.Alert) string {
	var rows strings.Builder
	for _, kv := range sortedMetadata(alert) {
		fmt.Fprintf(&rows, "<tr><td><strong>%s</strong></td><td>%s</td></tr>\n",
			html.EscapeString(kv[0]), html.EscapeString(kv[1]))
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: %s; color: #fff; padding: 16px; border-radius: 4px; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
        td { padding: 4px 8px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header"><h2>%s</h2></div>
        <p>%s</p>
        <table>
<tr><td><strong>Alert ID</strong></td><td>%s</td></tr>
<tr><td><strong>Time</strong></td><td>%s</td></tr>
%s        </table>
        <div class="footer">This is an automated message from the security monitor.</div>
    </div>
</body>
</html>
`,
		severityColor(alert.Severity),
		html.EscapeString(subject(alert)),
		html.EscapeString(alert.Description),
		alert.ID,
		alert.Timestamp.UTC().Format(time.RFC3339),
		rows.String(),
	)
}
