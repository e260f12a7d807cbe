package kafka

import (
	"context"
	"encoding/json"
	"sync"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"response-service/internal/config"
	"response-service/internal/models"
	"response-service/internal/orchestrator"
)

// Consumer reads risk assessments from the upstream scorer's topic and
// queues them into the orchestrator service. Malformed events are dropped
// with an error log; they never crash the consumer.
type Consumer struct {
	reader *kafkago.Reader
	svc    *orchestrator.Service
	logger *logrus.Logger
}

func NewConsumer(cfg config.Config, svc *orchestrator.Service, logger *logrus.Logger) *Consumer {
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  []string{cfg.Kafka.Broker},
		Topic:    cfg.Kafka.Topic,
		GroupID:  cfg.Kafka.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{reader: reader, svc: svc, logger: logger}
}

// Start consumes until the context is cancelled.
func (c *Consumer) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.logger.Info("Kafka consumer started")
		for {
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					c.logger.Info("Kafka consumer stopped")
					return
				}
				c.logger.Errorf("Read message failed: %v", err)
				continue
			}

			var a models.RiskAssessment
			if err := json.Unmarshal(msg.Value, &a); err != nil {
				c.logger.Errorf("Unmarshal assessment failed: %v", err)
				continue
			}
			if a.ID == "" || a.AssetID == "" {
				c.logger.Error("Invalid assessment: missing assessment_id or asset_id")
				continue
			}
			c.svc.Queue(a)
		}
	}()
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.logger.Errorf("Kafka reader close failed: %v", err)
	}
}
