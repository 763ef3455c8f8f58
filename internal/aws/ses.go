package aws

import (
	"context"
	"fmt"

	"github.com/USSTM/microservice/internal/config"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESReporter mails error reports.
type SESReporter struct {
	client    *ses.Client
	fromEmail string
	toEmail   string
}

func NewSESReporter(awsCfg aws.Config, cfg config.AWSConfig, to string) (*SESReporter, error) {
	if cfg.FromEmail == "" || to == "" {
		return nil, fmt.Errorf("ses reporter needs both a sender and a recipient address")
	}

	client := ses.NewFromConfig(awsCfg, func(o *ses.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		}
	})

	return &SESReporter{
		client:    client,
		fromEmail: cfg.FromEmail,
		toEmail:   to,
	}, nil
}

func (s *SESReporter) Report(ctx context.Context, title, body string) error {
	input := &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{s.toEmail},
		},
		Message: &types.Message{
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(body),
				},
			},
			Subject: &types.Content{
				Data: aws.String(title),
			},
		},
		Source: aws.String(s.fromEmail),
	}

	if _, err := s.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("failed to send email via SES: %w", err)
	}

	return nil
}

// VerifyEmailIdentity registers the sender, only needed against localstack.
func (s *SESReporter) VerifyEmailIdentity(ctx context.Context) error {
	_, err := s.client.VerifyEmailIdentity(ctx, &ses.VerifyEmailIdentityInput{
		EmailAddress: aws.String(s.fromEmail),
	})
	if err != nil {
		return fmt.Errorf("failed to verify email identity: %w", err)
	}
	return nil
}
