// Package amqp10 implements the broker capabilities over AMQP 1.0 using
// github.com/Azure/go-amqp. The naming session is an authenticated AMQP
// connection to the provider URL holding the naming table; every broker
// connection derived from it is dialled separately.
package amqp10

import (
	"context"
	"errors"

	amqp "github.com/Azure/go-amqp"

	"github.com/temirov/queuesend/internal/broker"
)

// ProviderName is the context factory identifier of this provider.
const ProviderName = "amqp10"

const defaultContainerID = "queuesend"

var supportedSchemes = []string{"amqp", "amqps"}

// Provider opens AMQP 1.0 naming sessions.
type Provider struct {
	dial dialFunc
}

// NewProvider returns a provider dialling real AMQP 1.0 peers.
func NewProvider() *Provider {
	return &Provider{dial: dialAMQP}
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
	options := connectionOptions(environment.Principal, environment.Credential, defaultContainerID)
	connection, dialErr := provider.dial(ctx, environment.ProviderURL, options)
	if dialErr != nil {
		return nil, dialErr
	}
	return &directorySession{
		provider:    provider,
		environment: environment,
		connection:  connection,
	}, nil
}

func connectionOptions(principal, credential, containerID string) *amqp.ConnOptions {
	options := &amqp.ConnOptions{ContainerID: containerID}
	if principal == "" {
		options.SASLType = amqp.SASLTypeAnonymous()
	} else {
		options.SASLType = amqp.SASLTypePlain(principal, credential)
	}
	return options
}

type directorySession struct {
	provider    *Provider
	environment broker.Environment
	connection  linkConnection
}

func (session *directorySession) LookupConnectionFactory(_ context.Context, name string) (broker.ConnectionFactory, error) {
	binding, resolveErr := session.environment.Bindings.ConnectionFactory(name)
	if resolveErr != nil {
		return nil, resolveErr
	}
	factory := &connectionFactory{
		dial:        session.provider.dial,
		url:         session.environment.ProviderURL,
		containerID: defaultContainerID,
		principal:   session.environment.Principal,
		credential:  session.environment.Credential,
	}
	if binding.URL != "" {
		factory.url = binding.URL
	}
	if binding.ContainerID != "" {
		factory.containerID = binding.ContainerID
	}
	return factory, nil
}

func (session *directorySession) LookupDestination(_ context.Context, name string) (broker.Destination, error) {
	address, resolveErr := session.environment.Bindings.Destination(name)
	if resolveErr != nil {
		return nil, resolveErr
	}
	return broker.NamedDestination{LogicalName: name, PhysicalAddress: address}, nil
}

func (session *directorySession) Close(context.Context) error {
	return session.connection.Close()
}

type connectionFactory struct {
	dial        dialFunc
	url         string
	containerID string
	principal   string
	credential  string
}

func (factory *connectionFactory) CreateConnection(ctx context.Context) (broker.Connection, error) {
	linkConnection, dialErr := factory.dial(ctx, factory.url, connectionOptions(factory.principal, factory.credential, factory.containerID))
	if dialErr != nil {
		return nil, dialErr
	}
	return &connection{link: linkConnection}, nil
}

// connection gates delivery on Start because AMQP 1.0 has no start/stop of its own.
type connection struct {
	link    linkConnection
	started bool
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
	linkSession, sessionErr := connection.link.NewSession(ctx)
	if sessionErr != nil {
		return nil, sessionErr
	}
	return &session{connection: connection, link: linkSession}, nil
}

func (connection *connection) Close(context.Context) error {
	return connection.link.Close()
}

type session struct {
	connection *connection
	link       linkSession
}

func (session *session) CreateTextMessage(text string) (broker.TextMessage, error) {
	return broker.NewTextMessage(text), nil
}

func (session *session) CreateSender(ctx context.Context, destination broker.Destination) (broker.Sender, error) {
	if destination == nil {
		return nil, errors.New("nil destination")
	}
	linkSender, senderErr := session.link.NewSender(ctx, destination.Address())
	if senderErr != nil {
		return nil, senderErr
	}
	return &sender{connection: session.connection, link: linkSender}, nil
}

func (session *session) Close(ctx context.Context) error {
	return session.link.Close(ctx)
}

type sender struct {
	connection *connection
	link       linkSender
}

func (sender *sender) Send(ctx context.Context, message broker.TextMessage) error {
	if !sender.connection.started {
		return broker.ErrConnectionNotStarted
	}
	return sender.link.Send(ctx, newAMQPMessage(message))
}

func (sender *sender) Close(ctx context.Context) error {
	return sender.link.Close(ctx)
}

// newAMQPMessage carries the text as an AMQP value section, the layout JMS
// clients over AMQP 1.0 use for text messages.
func newAMQPMessage(message broker.TextMessage) *amqp.Message {
	return &amqp.Message{
		Header: &amqp.MessageHeader{Durable: true},
		Value:  message.Text(),
	}
}

var _ broker.Provider = (*Provider)(nil)
