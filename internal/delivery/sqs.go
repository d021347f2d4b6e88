package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"

	"github.com/lalithlochan/pitchside/internal/job"
)

// QueueDeliverer hands jobs off to an SQS queue consumed by an external push
// worker. Delivery here means the hand-off succeeded, not that a device
// received anything; the worker owns the rest.
type QueueDeliverer struct {
	client   *sqs.Client
	queueURL string
	logger   *zap.Logger
}

type QueueConfig struct {
	Region   string
	QueueURL string
}

// QueueMessage is the payload placed on the queue.
type QueueMessage struct {
	JobID      string      `json:"job_id"`
	UserID     string      `json:"user_id"`
	Type       string      `json:"type"`
	Payload    job.Payload `json:"payload"`
	EnqueuedAt int64       `json:"enqueued_at"`
}

func NewQueueDeliverer(ctx context.Context, cfg QueueConfig, logger *zap.Logger) (*QueueDeliverer, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	logger.Info("queue deliverer initialized",
		zap.String("queue_url", cfg.QueueURL),
	)

	return &QueueDeliverer{
		client:   sqs.NewFromConfig(awsCfg),
		queueURL: cfg.QueueURL,
		logger:   logger,
	}, nil
}

func (d *QueueDeliverer) Deliver(ctx context.Context, n *job.Notification) error {
	if n.Payload.Channel != job.ChannelQueue {
		return fmt.Errorf("queue deliverer only supports queue hand-off, got: %s", n.Payload.Channel)
	}

	body, err := json.Marshal(QueueMessage{
		JobID:      n.ID.String(),
		UserID:     n.UserID,
		Type:       string(n.Type),
		Payload:    n.Payload,
		EnqueuedAt: time.Now().UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal queue message: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(d.queueURL),
		MessageBody: aws.String(string(body)),
	}

	result, err := d.client.SendMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("sqs send failed: %w", err)
	}

	d.logger.Info("job handed off to queue",
		zap.String("id", n.ID.String()),
		zap.String("message_id", *result.MessageId),
	)

	return nil
}

func (d *QueueDeliverer) SupportsChannel(channel string) bool {
	return channel == job.ChannelQueue
}
