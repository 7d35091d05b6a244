package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"lead-engine/internal/models"
)

// SNSService is the subset of the SNS client used for delivery.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type SMSConfig struct {
	SalesPhone string
	SenderID   string
	Template   Template
}

// SNSNotifier texts sales alerts to the sales phone. Other events are ignored.
type SNSNotifier struct {
	client SNSService
	config SMSConfig
}

func NewSNSNotifier(client SNSService, cfg SMSConfig) *SNSNotifier {
	return &SNSNotifier{client: client, config: cfg}
}

func (n *SNSNotifier) Name() string { return "sms" }

func (n *SNSNotifier) Publish(ctx context.Context, event models.Event) error {
	if event.Type != models.EventSalesAlert || n.config.SalesPhone == "" {
		return nil
	}

	message := renderTemplate(n.config.Template.Subject, event.TemplateData())
	if message == "" {
		message = fmt.Sprintf("Hot lead: %s (%s) scored %.0f", event.FullName, event.Company, event.Score)
	}

	input := &sns.PublishInput{
		PhoneNumber: aws.String(n.config.SalesPhone),
		Message:     aws.String(message),
	}
	if n.config.SenderID != "" {
		input.MessageAttributes = map[string]snstypes.MessageAttributeValue{
			"AWS.SNS.SMS.SenderID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(n.config.SenderID),
			},
		}
	}

	if _, err := n.client.Publish(ctx, input); err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	return nil
}
