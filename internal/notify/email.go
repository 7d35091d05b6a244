package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"lead-engine/internal/common/logger"
	"lead-engine/internal/models"
)

const (
	TemplateSalesAlert    = "sales_alert"
	TemplateLeadQualified = "lead_qualified"
)

// SESService is the subset of the SES client used for delivery.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type EmailConfig struct {
	FromEmail  string
	SalesInbox string
	Templates  map[string]Template
}

// SESNotifier emails sales alerts to the sales inbox and qualification and
// nurturing messages to the lead.
type SESNotifier struct {
	client SESService
	config EmailConfig
	logger logger.Logger
}

func NewSESNotifier(client SESService, cfg EmailConfig, log logger.Logger) *SESNotifier {
	return &SESNotifier{
		client: client,
		config: cfg,
		logger: log.WithFields(map[string]interface{}{"sink": "email"}),
	}
}

func (n *SESNotifier) Name() string { return "email" }

func (n *SESNotifier) Publish(ctx context.Context, event models.Event) error {
	var to, templateName string
	switch event.Type {
	case models.EventSalesAlert:
		to, templateName = n.config.SalesInbox, TemplateSalesAlert
	case models.EventLeadQualified:
		to, templateName = event.Email, TemplateLeadQualified
	case models.EventNurturingStep:
		to, templateName = event.Email, event.Template
	default:
		return nil
	}

	if to == "" {
		n.logger.Debug("no recipient, skipping email", map[string]interface{}{"eventType": string(event.Type)})
		return nil
	}

	tmpl, ok := n.config.Templates[templateName]
	if !ok {
		n.logger.Warn("template not configured, skipping email", map[string]interface{}{
			"template":  templateName,
			"eventType": string(event.Type),
		})
		return nil
	}

	data := event.TemplateData()
	subject := renderTemplate(tmpl.Subject, data)
	body := renderTemplate(tmpl.Body, data)

	_, err := n.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
				Html: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(n.config.FromEmail),
	})
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}
