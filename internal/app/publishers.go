package app

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopqueue/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/shopqueue/internal/health"
	"github.com/vladislavdragonenkov/shopqueue/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/shopqueue/internal/messaging/rabbitmq"
)

// publishers — основной паблишер outbox, паблишер DLQ и их закрытие.
type publishers struct {
	main    domain.OutboxPublisher
	dlq     domain.OutboxPublisher
	checker healthcheck.Checker
	closeFn func() error
}

// initPublishers подключает брокер. Для BrokerNone возвращает пустой набор: outbox копится без публикации.
func initPublishers(cfg Config, logger *log.Entry) (*publishers, error) {
	switch cfg.OutboxBroker {
	case BrokerNone, "":
		logger.Info("outbox broker is not configured, events stay in outbox")
		return &publishers{}, nil

	case BrokerKafka:
		producer, err := kafka.NewProducer(cfg.KafkaBrokers)
		if err != nil {
			return nil, fmt.Errorf("create kafka producer: %w", err)
		}
		logger.WithField("brokers", cfg.KafkaBrokers).Info("kafka producer initialized")
		return &publishers{
			main:    kafka.NewOutboxPublisher(producer),
			dlq:     kafka.NewTopicPublisher(producer, kafka.TopicDeadLetterQueue),
			closeFn: producer.Close,
		}, nil

	case BrokerRabbitMQ:
		rlog := logger.WithField("component", "rabbitmq-publisher")
		main, err := rabbitmq.Dial(cfg.RabbitMQURL, rabbitmq.WithLogger(rlog))
		if err != nil {
			return nil, err
		}
		dlq, err := rabbitmq.Dial(cfg.RabbitMQURL, rabbitmq.WithLogger(rlog), rabbitmq.WithKeyPrefix("dlq."))
		if err != nil {
			_ = main.Close()
			return nil, err
		}
		logger.Info("rabbitmq publisher initialized")
		return &publishers{
			main: main,
			dlq:  dlq,
			checker: healthcheck.NewSimpleChecker("rabbitmq", func(_ context.Context) error {
				return errors.Join(main.Ping(), dlq.Ping())
			}),
			closeFn: func() error { return errors.Join(main.Close(), dlq.Close()) },
		}, nil

	default:
		return nil, fmt.Errorf("unsupported outbox broker %q", cfg.OutboxBroker)
	}
}

func (p *publishers) close(logger *log.Entry) {
	if p == nil || p.closeFn == nil {
		return
	}
	if err := p.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close outbox publisher")
		return
	}
	logger.Info("outbox publisher closed")
}
