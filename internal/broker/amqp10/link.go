package amqp10

import (
	"context"

	amqp "github.com/Azure/go-amqp"
)

type dialFunc func(ctx context.Context, address string, options *amqp.ConnOptions) (linkConnection, error)

type linkConnection interface {
	NewSession(ctx context.Context) (linkSession, error)
	Close() error
}

type linkSession interface {
	NewSender(ctx context.Context, target string) (linkSender, error)
	Close(ctx context.Context) error
}

type linkSender interface {
	Send(ctx context.Context, message *amqp.Message) error
	Close(ctx context.Context) error
}

func dialAMQP(ctx context.Context, address string, options *amqp.ConnOptions) (linkConnection, error) {
	connection, dialErr := amqp.Dial(ctx, address, options)
	if dialErr != nil {
		return nil, dialErr
	}
	return connectionAdapter{connection: connection}, nil
}

type connectionAdapter struct {
	connection *amqp.Conn
}

func (adapter connectionAdapter) NewSession(ctx context.Context) (linkSession, error) {
	session, sessionErr := adapter.connection.NewSession(ctx, nil)
	if sessionErr != nil {
		return nil, sessionErr
	}
	return sessionAdapter{session: session}, nil
}

func (adapter connectionAdapter) Close() error {
	return adapter.connection.Close()
}

type sessionAdapter struct {
	session *amqp.Session
}

func (adapter sessionAdapter) NewSender(ctx context.Context, target string) (linkSender, error) {
	sender, senderErr := adapter.session.NewSender(ctx, target, nil)
	if senderErr != nil {
		return nil, senderErr
	}
	return senderAdapter{sender: sender}, nil
}

func (adapter sessionAdapter) Close(ctx context.Context) error {
	return adapter.session.Close(ctx)
}

type senderAdapter struct {
	sender *amqp.Sender
}

func (adapter senderAdapter) Send(ctx context.Context, message *amqp.Message) error {
	return adapter.sender.Send(ctx, message, nil)
}

func (adapter senderAdapter) Close(ctx context.Context) error {
	return adapter.sender.Close(ctx)
}
