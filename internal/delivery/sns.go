package delivery

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"

	"github.com/lalithlochan/pitchside/internal/job"
)

// SNSDeliverer publishes push notifications to an SNS topic. Device fan-out
// happens downstream of the topic; this core only needs a pass/fail result.
type SNSDeliverer struct {
	client   *sns.Client
	topicARN string
	logger   *zap.Logger
}

type SNSConfig struct {
	Region   string
	TopicARN string
}

// pushMessage is the JSON envelope published to the topic.
type pushMessage struct {
	JobID  string            `json:"job_id"`
	UserID string            `json:"user_id"`
	Type   string            `json:"type"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
}

func NewSNSDeliverer(ctx context.Context, cfg SNSConfig, logger *zap.Logger) (*SNSDeliverer, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config for SNS: %w", err)
	}

	return &SNSDeliverer{
		client:   sns.NewFromConfig(awsCfg),
		topicARN: cfg.TopicARN,
		logger:   logger,
	}, nil
}

func (d *SNSDeliverer) Deliver(ctx context.Context, n *job.Notification) error {
	if n.Payload.Channel != job.ChannelPush {
		return fmt.Errorf("SNS deliverer only supports push, got: %s", n.Payload.Channel)
	}

	body, err := json.Marshal(pushMessage{
		JobID:  n.ID.String(),
		UserID: n.UserID,
		Type:   string(n.Type),
		Title:  n.Payload.Title,
		Body:   n.Payload.Body,
		Data:   n.Payload.Data,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal push message: %w", err)
	}

	input := &sns.PublishInput{
		TopicArn: aws.String(d.topicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"user_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(n.UserID),
			},
			"type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(n.Type)),
			},
		},
	}

	result, err := d.client.Publish(ctx, input)
	if err != nil {
		return fmt.Errorf("sns publish failed: %w", err)
	}

	d.logger.Info("push notification published",
		zap.String("id", n.ID.String()),
		zap.String("user_id", n.UserID),
		zap.String("message_id", *result.MessageId),
	)

	return nil
}

func (d *SNSDeliverer) SupportsChannel(channel string) bool {
	return channel == job.ChannelPush
}
