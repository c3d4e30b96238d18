// Package rabbitmq implements the broker capabilities over AMQP 0-9-1 using
// github.com/rabbitmq/amqp091-go.
//
// The naming session is an authenticated connection used to verify that
// looked-up queues exist. Each broker connection is dialled separately and
// each messaging session is a channel on it.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/temirov/queuesend/internal/broker"
)

// ProviderName is the context factory identifier of this provider.
const ProviderName = "rabbitmq"

const (
	defaultDialTimeout = 30 * time.Second
	textContentType    = "text/plain"
	textEncoding       = "utf-8"
	connectionName     = "queuesend"
)

var supportedSchemes = []string{"amqp", "amqps"}

// Provider opens AMQP 0-9-1 naming sessions.
type Provider struct {
	dial dialFunc
}

// NewProvider returns a provider dialling real RabbitMQ brokers.
func NewProvider() *Provider {
	return &Provider{dial: dialRabbitMQ}
}

// Name returns the context factory identifier.
func (provider *Provider) Name() string {
	return ProviderName
}

// Schemes lists the accepted URL schemes.
func (provider *Provider) Schemes() []string {
	return append([]string(nil), supportedSchemes...)
}

// Open authenticates against the provider URL.
func (provider *Provider) Open(ctx context.Context, environment broker.Environment) (broker.DirectorySession, error) {
	connection, dialErr := provider.dial(environment.ProviderURL, clientConfig(ctx, environment.Principal, environment.Credential))
	if dialErr != nil {
		return nil, dialErr
	}
	return &directorySession{provider: provider, environment: environment, connection: connection}, nil
}

func clientConfig(ctx context.Context, principal, credential string) amqp.Config {
	config := amqp.Config{
		Dial:       amqp.DefaultDial(dialTimeout(ctx)),
		Properties: amqp.NewConnectionProperties(),
	}
	config.Properties.SetClientConnectionName(connectionName)
	if principal != "" {
		config.SASL = []amqp.Authentication{&amqp.PlainAuth{Username: principal, Password: credential}}
	}
	return config
}

// dialTimeout bounds the TCP dial by the context deadline because the client
// library takes no context when connecting.
func dialTimeout(ctx context.Context) time.Duration {
	if deadline, hasDeadline := ctx.Deadline(); hasDeadline {
		if remaining := time.Until(deadline); remaining > 0 {
			return remaining
		}
		return time.Millisecond
	}
	return defaultDialTimeout
}

type directorySession struct {
	provider    *Provider
	environment broker.Environment
	connection  amqpConnection
}

func (session *directorySession) LookupConnectionFactory(_ context.Context, name string) (broker.ConnectionFactory, error) {
	binding, resolveErr := session.environment.Bindings.ConnectionFactory(name)
	if resolveErr != nil {
		return nil, resolveErr
	}
	factory := &connectionFactory{
		dial:       session.provider.dial,
		url:        session.environment.ProviderURL,
		exchange:   binding.Exchange,
		principal:  session.environment.Principal,
		credential: session.environment.Credential,
	}
	if binding.URL != "" {
		factory.url = binding.URL
	}
	return factory, nil
}

// LookupDestination resolves the name and verifies the queue exists with a
// passive declare on a short-lived channel.
func (session *directorySession) LookupDestination(ctx context.Context, name string) (broker.Destination, error) {
	address, resolveErr := session.environment.Bindings.Destination(name)
	if resolveErr != nil {
		return nil, resolveErr
	}
	channel, channelErr := openChannel(ctx, session.connection)
	if channelErr != nil {
		return nil, channelErr
	}
	declareErr := declarePassive(ctx, channel, address)
	// A failed passive declare already closes the channel on the server side.
	_ = channel.Close()
	if declareErr != nil {
		var amqpError *amqp.Error
		if errors.As(declareErr, &amqpError) && amqpError.Code == amqp.NotFound {
			return nil, fmt.Errorf("%w: queue %q: %v", broker.ErrNameNotFound, address, declareErr)
		}
		return nil, declareErr
	}
	return broker.NamedDestination{LogicalName: name, PhysicalAddress: address}, nil
}

func (session *directorySession) Close(context.Context) error {
	return session.connection.Close()
}

type connectionFactory struct {
	dial       dialFunc
	url        string
	exchange   string
	principal  string
	credential string
}

func (factory *connectionFactory) CreateConnection(ctx context.Context) (broker.Connection, error) {
	amqpConnection, dialErr := factory.dial(factory.url, clientConfig(ctx, factory.principal, factory.credential))
	if dialErr != nil {
		return nil, dialErr
	}
	return &connection{amqp: amqpConnection, exchange: factory.exchange}, nil
}

type connection struct {
	amqp     amqpConnection
	exchange string
	started  bool
}

func (connection *connection) Start(context.Context) error {
	connection.started = true
	return nil
}

func (connection *connection) Stop(context.Context) error {
	connection.started = false
	return nil
}

func (connection *connection) CreateSession(ctx context.Context, options broker.SessionOptions) (broker.Session, error) {
	if validationErr := options.Validate(); validationErr != nil {
		return nil, validationErr
	}
	channel, channelErr := openChannel(ctx, connection.amqp)
	if channelErr != nil {
		return nil, channelErr
	}
	return &session{connection: connection, channel: channel}, nil
}

func (connection *connection) Close(context.Context) error {
	return connection.amqp.Close()
}

type session struct {
	connection *connection
	channel    amqpChannel
}

func (session *session) CreateTextMessage(text string) (broker.TextMessage, error) {
	return broker.NewTextMessage(text), nil
}

func (session *session) CreateSender(_ context.Context, destination broker.Destination) (broker.Sender, error) {
	if destination == nil {
		return nil, errors.New("nil destination")
	}
	return &sender{session: session, routingKey: destination.Address()}, nil
}

func (session *session) Close(context.Context) error {
	return session.channel.Close()
}

// sender publishes on the session's channel; it owns no broker resource.
type sender struct {
	session    *session
	routingKey string
}

func (sender *sender) Send(ctx context.Context, message broker.TextMessage) error {
	if !sender.session.connection.started {
		return broker.ErrConnectionNotStarted
	}
	publishing := amqp.Publishing{
		ContentType:     textContentType,
		ContentEncoding: textEncoding,
		DeliveryMode:    amqp.Persistent,
		Timestamp:       time.Now(),
		Body:            []byte(message.Text()),
	}
	return sender.session.channel.Publish(ctx, sender.session.connection.exchange, sender.routingKey, publishing)
}

func (sender *sender) Close(context.Context) error {
	return nil
}

var _ broker.Provider = (*Provider)(nil)
