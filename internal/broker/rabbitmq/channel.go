package rabbitmq

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

type dialFunc func(url string, config amqp.Config) (amqpConnection, error)

type amqpConnection interface {
	Channel() (amqpChannel, error)
	Close() error
}

type amqpChannel interface {
	QueueDeclarePassive(name string) error
	Publish(ctx context.Context, exchange, routingKey string, publishing amqp.Publishing) error
	Close() error
}

func dialRabbitMQ(url string, config amqp.Config) (amqpConnection, error) {
	connection, dialErr := amqp.DialConfig(url, config)
	if dialErr != nil {
		return nil, dialErr
	}
	return connectionAdapter{connection: connection}, nil
}

type connectionAdapter struct {
	connection *amqp.Connection
}

func (adapter connectionAdapter) Channel() (amqpChannel, error) {
	channel, channelErr := adapter.connection.Channel()
	if channelErr != nil {
		return nil, channelErr
	}
	return channelAdapter{channel: channel}, nil
}

func (adapter connectionAdapter) Close() error {
	return adapter.connection.Close()
}

type channelAdapter struct {
	channel *amqp.Channel
}

func (adapter channelAdapter) QueueDeclarePassive(name string) error {
	_, declareErr := adapter.channel.QueueDeclarePassive(name, false, false, false, false, nil)
	return declareErr
}

func (adapter channelAdapter) Publish(ctx context.Context, exchange, routingKey string, publishing amqp.Publishing) error {
	return adapter.channel.PublishWithContext(ctx, exchange, routingKey, false, false, publishing)
}

func (adapter channelAdapter) Close() error {
	return adapter.channel.Close()
}

type callResult[T any] struct {
	value T
	err   error
}

// awaitCall runs a client call that takes no context and stops waiting when
// ctx is done. A value that arrives after that is handed to release.
func awaitCall[T any](ctx context.Context, operation func() (T, error), release func(T)) (T, error) {
	results := make(chan callResult[T], 1)
	go func() {
		value, operationErr := operation()
		results <- callResult[T]{value: value, err: operationErr}
	}()
	select {
	case result := <-results:
		return result.value, result.err
	case <-ctx.Done():
		go func() {
			if late := <-results; late.err == nil && release != nil {
				release(late.value)
			}
		}()
		var zero T
		return zero, ctx.Err()
	}
}

func openChannel(ctx context.Context, connection amqpConnection) (amqpChannel, error) {
	return awaitCall(ctx, connection.Channel, func(channel amqpChannel) { _ = channel.Close() })
}

func declarePassive(ctx context.Context, channel amqpChannel, name string) error {
	_, declareErr := awaitCall(ctx, func() (struct{}, error) {
		return struct{}{}, channel.QueueDeclarePassive(name)
	}, nil)
	return declareErr
}
