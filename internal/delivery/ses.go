package delivery

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.uber.org/zap"

	"github.com/lalithlochan/pitchside/internal/job"
)

// SESDeliverer sends email notifications via AWS SES. The destination address
// is carried in the payload data under "email"; jobs without one fail.
type SESDeliverer struct {
	client *ses.Client
	from   string
	logger *zap.Logger
}

type SESConfig struct {
	Region    string
	FromEmail string
}

func NewSESDeliverer(ctx context.Context, cfg SESConfig, logger *zap.Logger) (*SESDeliverer, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config: %w", err)
	}
	return &SESDeliverer{
		client: ses.NewFromConfig(awsCfg),
		from:   cfg.FromEmail,
		logger: logger,
	}, nil
}

func (d *SESDeliverer) Deliver(ctx context.Context, n *job.Notification) error {
	if n.Payload.Channel != job.ChannelEmail {
		return fmt.Errorf("SES deliverer only supports email, got: %s", n.Payload.Channel)
	}

	to := n.Payload.Data["email"]
	if to == "" {
		return fmt.Errorf("email payload missing 'email' data field")
	}
	if n.Payload.Title == "" {
		return fmt.Errorf("email payload missing title")
	}
	if n.Payload.Body == "" {
		return fmt.Errorf("email payload missing body")
	}

	input := &ses.SendEmailInput{
		Source: aws.String(d.from),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(n.Payload.Title),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(n.Payload.Body),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	result, err := d.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("ses send failed: %w", err)
	}

	d.logger.Info("email sent via SES",
		zap.String("id", n.ID.String()),
		zap.String("to", to),
		zap.String("message_id", *result.MessageId),
	)

	return nil
}

func (d *SESDeliverer) SupportsChannel(channel string) bool {
	return channel == job.ChannelEmail
}
