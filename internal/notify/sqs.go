package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"esign-backend/internal/envelopes"
)

// outboundMessage is the payload handed to the downstream mail worker.
type outboundMessage struct {
	To         string `json:"to"`
	Name       string `json:"name"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	Kind       string `json:"kind"`
	EnvelopeID string `json:"envelopeId"`
	Role       string `json:"role"`
	Token      string `json:"token,omitempty"`
}

// SQSNotifier delivers notification descriptors to an SQS queue consumed by
// the mail service.
type SQSNotifier struct {
	client   *sqs.Client
	queueURL string
}

// NewSQSNotifier constructs an SQS-backed notifier.
func NewSQSNotifier(ctx context.Context, region, queueURL string) (*SQSNotifier, error) {
	if strings.TrimSpace(queueURL) == "" {
		return nil, fmt.Errorf("notify queue url is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &SQSNotifier{
		client:   sqs.NewFromConfig(cfg),
		queueURL: queueURL,
	}, nil
}

// Send renders the notification and enqueues it for delivery.
func (s *SQSNotifier) Send(ctx context.Context, n envelopes.Notification) error {
	rendered := Render(n)
	payload, err := json.Marshal(outboundMessage{
		To:         n.To,
		Name:       n.Name,
		Subject:    rendered.Subject,
		Body:       rendered.Body,
		Kind:       n.Kind,
		EnvelopeID: n.EnvelopeID,
		Role:       string(n.Role),
		Token:      n.Token,
	})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	_, err = s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(payload)),
	})
	if err != nil {
		return fmt.Errorf("sqs send message: %w", err)
	}
	return nil
}

var _ envelopes.Notifier = (*SQSNotifier)(nil)
