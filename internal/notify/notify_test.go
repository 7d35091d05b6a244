package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"lead-engine/internal/common/errors"
	"lead-engine/internal/common/logger"
	"lead-engine/internal/models"
)

// ==========================
// Mock Implementations
// ==========================

type MockSESService struct {
	SendEmailFunc func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
	calls         []*ses.SendEmailInput
}

func (m *MockSESService) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	m.calls = append(m.calls, params)
	if m.SendEmailFunc == nil {
		return &ses.SendEmailOutput{}, nil
	}
	return m.SendEmailFunc(ctx, params, optFns...)
}

type MockSNSService struct {
	calls []*sns.PublishInput
	err   error
}

func (m *MockSNSService) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.calls = append(m.calls, params)
	return &sns.PublishOutput{}, m.err
}

type MockChannel struct {
	mock.Mock
}

func (m *MockChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	args := m.Called(ctx, exchange, key, mandatory, immediate, msg)
	return args.Error(0)
}

type stubSink struct {
	name   string
	err    error
	events []models.Event
}

func (s *stubSink) Name() string { return s.name }

func (s *stubSink) Publish(ctx context.Context, event models.Event) error {
	s.events = append(s.events, event)
	return s.err
}

// ==========================
// Test Helper Functions
// ==========================

func testTemplates() map[string]Template {
	return map[string]Template{
		TemplateSalesAlert: {
			Subject: "Hot lead: {{full_name}} ({{company}})",
			Body:    "{{full_name}} scored {{score}}. Reach out at {{email}}.",
		},
		TemplateLeadQualified: {
			Subject: "Thanks, {{first_name}}",
			Body:    "Hi {{first_name}}.",
		},
		"nurture_welcome": {
			Subject: "Welcome, {{first_name}}",
			Body:    "Hi {{first_name}}, step {{step}} for {{company}}.",
		},
	}
}

func testEvent(eventType models.EventType) models.Event {
	return models.Event{
		ID:        "evt-1",
		Type:      eventType,
		LeadID:    "lead-1",
		Email:     "ada@example.com",
		FirstName: "Ada",
		FullName:  "Ada Lovelace",
		Company:   "Analytical Engines",
		Status:    models.StatusQualified,
		Score:     88.5,
	}
}

// ==========================
// Template rendering
// ==========================

func TestRenderTemplate(t *testing.T) {
	tests := []struct {
		name     string
		tmpl     string
		data     map[string]interface{}
		expected string
	}{
		{"string", "Hi {{name}}", map[string]interface{}{"name": "Ada"}, "Hi Ada"},
		{"int", "step {{step}}", map[string]interface{}{"step": 2}, "step 2"},
		{"fractional float", "{{score}}", map[string]interface{}{"score": 82.5}, "82.5"},
		{"whole float", "{{score}}", map[string]interface{}{"score": 80.0}, "80"},
		{"missing placeholder removed", "Hi {{name}}{{missing}}!", map[string]interface{}{"name": "Ada"}, "Hi Ada!"},
		{"unterminated placeholder kept", "Hi {{name", map[string]interface{}{}, "Hi {{name"},
		{"nil value", "[{{x}}]", map[string]interface{}{"x": nil}, "[]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, renderTemplate(tt.tmpl, tt.data))
		})
	}
}

// ==========================
// Email sink
// ==========================

func TestSESNotifier_Routing(t *testing.T) {
	tests := []struct {
		name        string
		event       models.Event
		expectTo    string
		expectSubj  string
		expectSends int
	}{
		{
			name:        "sales alert to sales inbox",
			event:       testEvent(models.EventSalesAlert),
			expectTo:    "sales@example.com",
			expectSubj:  "Hot lead: Ada Lovelace (Analytical Engines)",
			expectSends: 1,
		},
		{
			name:        "qualified confirmation to lead",
			event:       testEvent(models.EventLeadQualified),
			expectTo:    "ada@example.com",
			expectSubj:  "Thanks, Ada",
			expectSends: 1,
		},
		{
			name: "nurturing step uses step template",
			event: func() models.Event {
				e := testEvent(models.EventNurturingStep)
				e.Template = "nurture_welcome"
				e.Step = 1
				return e
			}(),
			expectTo:    "ada@example.com",
			expectSubj:  "Welcome, Ada",
			expectSends: 1,
		},
		{
			name: "unknown template skipped",
			event: func() models.Event {
				e := testEvent(models.EventNurturingStep)
				e.Template = "nurture_missing"
				return e
			}(),
			expectSends: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &MockSESService{}
			n := NewSESNotifier(client, EmailConfig{
				FromEmail:  "noreply@example.com",
				SalesInbox: "sales@example.com",
				Templates:  testTemplates(),
			}, logger.NewTestLogger(t))

			require.NoError(t, n.Publish(context.Background(), tt.event))
			require.Len(t, client.calls, tt.expectSends)
			if tt.expectSends == 0 {
				return
			}

			input := client.calls[0]
			assert.Equal(t, []string{tt.expectTo}, input.Destination.ToAddresses)
			assert.Equal(t, tt.expectSubj, *input.Message.Subject.Data)
			assert.Equal(t, "noreply@example.com", *input.Source)
		})
	}
}

func TestSESNotifier_NurtureBodyRendersStep(t *testing.T) {
	client := &MockSESService{}
	n := NewSESNotifier(client, EmailConfig{Templates: testTemplates()}, logger.NewNoOpLogger())

	e := testEvent(models.EventNurturingStep)
	e.Template = "nurture_welcome"
	e.Step = 2
	require.NoError(t, n.Publish(context.Background(), e))

	require.Len(t, client.calls, 1)
	assert.Equal(t, "Hi Ada, step 2 for Analytical Engines.", *client.calls[0].Message.Body.Text.Data)
}

func TestSESNotifier_SendFailure(t *testing.T) {
	client := &MockSESService{
		SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			return nil, fmt.Errorf("throttled")
		},
	}
	n := NewSESNotifier(client, EmailConfig{SalesInbox: "sales@example.com", Templates: testTemplates()}, logger.NewNoOpLogger())

	err := n.Publish(context.Background(), testEvent(models.EventSalesAlert))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

// ==========================
// SMS sink
// ==========================

func TestSNSNotifier(t *testing.T) {
	client := &MockSNSService{}
	n := NewSNSNotifier(client, SMSConfig{
		SalesPhone: "+14155550100",
		SenderID:   "LEADS",
		Template:   testTemplates()[TemplateSalesAlert],
	})

	require.NoError(t, n.Publish(context.Background(), testEvent(models.EventLeadQualified)))
	assert.Empty(t, client.calls)

	require.NoError(t, n.Publish(context.Background(), testEvent(models.EventSalesAlert)))
	require.Len(t, client.calls, 1)
	assert.Equal(t, "+14155550100", *client.calls[0].PhoneNumber)
	assert.Equal(t, "Hot lead: Ada Lovelace (Analytical Engines)", *client.calls[0].Message)
	assert.Contains(t, client.calls[0].MessageAttributes, "AWS.SNS.SMS.SenderID")
}

func TestSNSNotifier_FallbackMessage(t *testing.T) {
	client := &MockSNSService{}
	n := NewSNSNotifier(client, SMSConfig{SalesPhone: "+14155550100"})

	require.NoError(t, n.Publish(context.Background(), testEvent(models.EventSalesAlert)))

	require.Len(t, client.calls, 1)
	assert.Equal(t, "Hot lead: Ada Lovelace (Analytical Engines) scored 88", *client.calls[0].Message)
	assert.Nil(t, client.calls[0].MessageAttributes)
}

// ==========================
// AMQP sink
// ==========================

func TestAMQPPublisher(t *testing.T) {
	ch := &MockChannel{}
	event := testEvent(models.EventLeadQualified)
	event.OccurredAt = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	ch.On("PublishWithContext", mock.Anything, "lead.events", "lead.qualified", false, false,
		mock.MatchedBy(func(msg amqp.Publishing) bool {
			var got models.Event
			if err := json.Unmarshal(msg.Body, &got); err != nil {
				return false
			}
			return msg.ContentType == "application/json" &&
				msg.DeliveryMode == amqp.Persistent &&
				msg.MessageId == "evt-1" &&
				got.LeadID == "lead-1"
		}),
	).Return(nil).Once()

	p := NewAMQPPublisher(ch, "lead.events")
	require.NoError(t, p.Publish(context.Background(), event))
	ch.AssertExpectations(t)
}

func TestAMQPPublisher_Error(t *testing.T) {
	ch := &MockChannel{}
	ch.On("PublishWithContext", mock.Anything, "lead.events", "lead.sales_alert", false, false, mock.Anything).
		Return(amqp.ErrClosed)

	err := NewAMQPPublisher(ch, "lead.events").Publish(context.Background(), testEvent(models.EventSalesAlert))

	assert.ErrorIs(t, err, amqp.ErrClosed)
}

// ==========================
// Dispatcher
// ==========================

func TestDispatcher_FillsIDAndTimestamp(t *testing.T) {
	sink := &stubSink{name: "stub"}
	d := NewDispatcher(logger.NewTestLogger(t), sink)

	require.NoError(t, d.Publish(context.Background(), models.Event{Type: models.EventLeadQualified, LeadID: "l-1"}))

	require.Len(t, sink.events, 1)
	assert.NotEmpty(t, sink.events[0].ID)
	assert.False(t, sink.events[0].OccurredAt.IsZero())
}

func TestDispatcher_OneSinkFailureDoesNotStopOthers(t *testing.T) {
	failing := &stubSink{name: "email", err: fmt.Errorf("smtp down")}
	ok := &stubSink{name: "amqp"}
	d := NewDispatcher(logger.NewTestLogger(t), failing, ok)

	err := d.Publish(context.Background(), testEvent(models.EventSalesAlert))

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeNotificationSendFailed, errors.CodeOf(err))
	assert.Len(t, failing.events, 1)
	assert.Len(t, ok.events, 1)
	assert.Equal(t, []string{"email", "amqp"}, d.Sinks())
}
