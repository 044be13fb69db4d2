package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ethereum-optimism/infra/op-narrator/types"
)

const AMQPReporterName = "amqp"

// RoutingKeyPrefix prefixes the routing key of published runs; the run status is appended
const RoutingKeyPrefix = "narrator.run."

// Publisher is the part of *amqp.Channel the amqp reporter needs
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// DialAMQP connects to the broker and declares the topic exchange runs are published to
func DialAMQP(url, exchange string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return conn, ch, nil
}

var _ Reporter = (*AMQPReporter)(nil)

// AMQPReporter publishes the JSON report of each run to an exchange
type AMQPReporter struct {
	pub      Publisher
	exchange string
}

// NewAMQPReporter creates a reporter publishing through pub
func NewAMQPReporter(pub Publisher, exchange string) *AMQPReporter {
	return &AMQPReporter{pub: pub, exchange: exchange}
}

func (r *AMQPReporter) Name() string {
	return AMQPReporterName
}

// SetOutputDirectory is a no-op, messages are not files
func (r *AMQPReporter) SetOutputDirectory(string) {}

func (r *AMQPReporter) GenerateReportFor(ctx context.Context, run *types.Run) error {
	body, err := marshalReport(run)
	if err != nil {
		return err
	}

	key := RoutingKeyPrefix + string(run.Status)
	err = r.pub.PublishWithContext(
		ctx,
		r.exchange,
		key,
		false,
		false,
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			MessageId:     uuid.New().String(),
			CorrelationId: run.ID,
			Timestamp:     time.Now(),
			Body:          body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish to %s/%s: %w", r.exchange, key, err)
	}
	return nil
}
