package feed

import (
	"context"
	"errors"
	"sync"

	"github.com/Shopify/sarama"
	storage "github.com/practice-sem-2/dm-service/internal/storages"
	"github.com/sirupsen/logrus"
)

// Consumer reads the updates topic from the newest offset of every partition
// and dispatches decoded updates into a Hub.
type Consumer struct {
	consumer sarama.Consumer
	topic    string
	hub      *Hub
	logger   logrus.FieldLogger
}

func NewConsumer(c sarama.Consumer, topic string, hub *Hub, logger logrus.FieldLogger) *Consumer {
	return &Consumer{
		consumer: c,
		topic:    topic,
		hub:      hub,
		logger:   logger,
	}
}

// Run blocks until ctx is canceled or every partition consumer has stopped.
func (c *Consumer) Run(ctx context.Context) error {
	partitions, err := c.consumer.Partitions(c.topic)
	if err != nil {
		return err
	}

	consumers := make([]sarama.PartitionConsumer, 0, len(partitions))
	for _, p := range partitions {
		pc, err := c.consumer.ConsumePartition(c.topic, p, sarama.OffsetNewest)
		if err != nil {
			for _, started := range consumers {
				_ = started.Close()
			}
			return err
		}
		consumers = append(consumers, pc)
	}

	wg := sync.WaitGroup{}
	for _, pc := range consumers {
		wg.Add(1)
		go func(pc sarama.PartitionConsumer) {
			defer wg.Done()
			c.consumePartition(ctx, pc)
		}(pc)
	}

	<-ctx.Done()
	for _, pc := range consumers {
		pc.AsyncClose()
	}
	wg.Wait()
	return nil
}

func (c *Consumer) consumePartition(ctx context.Context, pc sarama.PartitionConsumer) {
	errs := pc.Errors()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-pc.Messages():
			if !ok {
				return
			}
			c.handle(msg)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			c.logger.WithError(err).Warning("updates consumer error")
		}
	}
}

func (c *Consumer) handle(msg *sarama.ConsumerMessage) {
	update, err := storage.DecodeUpdate(msg.Value)
	if errors.Is(err, storage.ErrMalformedUpdate) {
		c.logger.
			WithError(err).
			WithField("offset", msg.Offset).
			Warning("skipping malformed update")
		return
	} else if err != nil {
		c.logger.WithError(err).Error("can't decode update")
		return
	}
	_ = c.hub.Publish(update)
}
