// Package brokertest provides an in-memory broker.Provider with scriptable
// failures and an ordered journal of every capability call.
package brokertest

import (
	"context"
	"errors"
	"fmt"

	"github.com/temirov/queuesend/internal/broker"
)

// ProviderName is the default context factory identifier of the fake.
const ProviderName = "memory"

// Step names one capability call.
type Step string

// Capability calls recorded in the journal.
const (
	StepOpen              Step = "open"
	StepLookupFactory     Step = "lookup-factory"
	StepCreateConnection  Step = "create-connection"
	StepCreateSession     Step = "create-session"
	StepLookupDestination Step = "lookup-destination"
	StepStart             Step = "start"
	StepCreateMessage     Step = "create-message"
	StepCreateSender      Step = "create-sender"
	StepSend              Step = "send"
	StepCloseSender       Step = "close-sender"
	StepStop              Step = "stop"
	StepCloseSession      Step = "close-session"
	StepCloseConnection   Step = "close-connection"
	StepCloseDirectory    Step = "close-directory"
)

// ErrUseAfterClose is returned, and recorded as a violation, when a resource
// is used after it or its owner was closed.
var ErrUseAfterClose = errors.New("resource used after close")

// Delivery is a message accepted by the fake broker.
type Delivery struct {
	Destination string
	Text        string
}

// Provider is an in-memory broker.Provider. Bindings come from the
// environment passed to Open, exactly as with the real providers.
type Provider struct {
	name     string
	schemes  []string
	failures map[Step]error

	Journal     []Step
	Deliveries  []Delivery
	Violations  []string
	Environment broker.Environment
}

// NewProvider returns a fake accepting the amqp and t3 schemes.
func NewProvider() *Provider {
	return &Provider{
		name:     ProviderName,
		schemes:  []string{"amqp", "amqps", "t3"},
		failures: map[Step]error{},
	}
}

// FailAt makes the given step fail with err.
func (provider *Provider) FailAt(step Step, err error) *Provider {
	provider.failures[step] = err
	return provider
}

// Name returns the context factory identifier.
func (provider *Provider) Name() string {
	return provider.name
}

// Schemes lists the accepted URL schemes.
func (provider *Provider) Schemes() []string {
	return provider.schemes
}

// Open records the environment and opens a naming session.
func (provider *Provider) Open(_ context.Context, environment broker.Environment) (broker.DirectorySession, error) {
	if stepErr := provider.record(StepOpen); stepErr != nil {
		return nil, stepErr
	}
	provider.Environment = environment
	return &directorySession{provider: provider, bindings: environment.Bindings}, nil
}

// Steps returns the journal filtered to the given steps, preserving order.
func (provider *Provider) Steps(filter ...Step) []Step {
	wanted := make(map[Step]struct{}, len(filter))
	for _, step := range filter {
		wanted[step] = struct{}{}
	}
	var steps []Step
	for _, step := range provider.Journal {
		if _, keep := wanted[step]; keep {
			steps = append(steps, step)
		}
	}
	return steps
}

func (provider *Provider) record(step Step) error {
	provider.Journal = append(provider.Journal, step)
	return provider.failures[step]
}

func (provider *Provider) violation(step Step, resource string) error {
	provider.Violations = append(provider.Violations, fmt.Sprintf("%s on closed %s", step, resource))
	return fmt.Errorf("%w: %s", ErrUseAfterClose, resource)
}

type directorySession struct {
	provider *Provider
	bindings broker.Bindings
	closed   bool
}

func (session *directorySession) LookupConnectionFactory(_ context.Context, name string) (broker.ConnectionFactory, error) {
	if stepErr := session.provider.record(StepLookupFactory); stepErr != nil {
		return nil, stepErr
	}
	if session.closed {
		return nil, session.provider.violation(StepLookupFactory, "naming session")
	}
	if _, resolveErr := session.bindings.ConnectionFactory(name); resolveErr != nil {
		return nil, resolveErr
	}
	return &connectionFactory{directory: session}, nil
}

func (session *directorySession) LookupDestination(_ context.Context, name string) (broker.Destination, error) {
	if stepErr := session.provider.record(StepLookupDestination); stepErr != nil {
		return nil, stepErr
	}
	if session.closed {
		return nil, session.provider.violation(StepLookupDestination, "naming session")
	}
	address, resolveErr := session.bindings.Destination(name)
	if resolveErr != nil {
		return nil, resolveErr
	}
	return broker.NamedDestination{LogicalName: name, PhysicalAddress: address}, nil
}

func (session *directorySession) Close(context.Context) error {
	if session.closed {
		return session.provider.violation(StepCloseDirectory, "naming session")
	}
	session.closed = true
	return session.provider.record(StepCloseDirectory)
}

type connectionFactory struct {
	directory *directorySession
}

func (factory *connectionFactory) CreateConnection(context.Context) (broker.Connection, error) {
	provider := factory.directory.provider
	if stepErr := provider.record(StepCreateConnection); stepErr != nil {
		return nil, stepErr
	}
	if factory.directory.closed {
		return nil, provider.violation(StepCreateConnection, "naming session")
	}
	return &connection{provider: provider}, nil
}

type connection struct {
	provider *Provider
	started  bool
	closed   bool
}

func (connection *connection) Start(context.Context) error {
	if stepErr := connection.provider.record(StepStart); stepErr != nil {
		return stepErr
	}
	if connection.closed {
		return connection.provider.violation(StepStart, "connection")
	}
	connection.started = true
	return nil
}

func (connection *connection) Stop(context.Context) error {
	if stepErr := connection.provider.record(StepStop); stepErr != nil {
		return stepErr
	}
	if connection.closed {
		return connection.provider.violation(StepStop, "connection")
	}
	connection.started = false
	return nil
}

func (connection *connection) CreateSession(_ context.Context, options broker.SessionOptions) (broker.Session, error) {
	if stepErr := connection.provider.record(StepCreateSession); stepErr != nil {
		return nil, stepErr
	}
	if connection.closed {
		return nil, connection.provider.violation(StepCreateSession, "connection")
	}
	if validationErr := options.Validate(); validationErr != nil {
		return nil, validationErr
	}
	return &session{connection: connection}, nil
}

func (connection *connection) Close(context.Context) error {
	if connection.closed {
		return connection.provider.violation(StepCloseConnection, "connection")
	}
	connection.closed = true
	return connection.provider.record(StepCloseConnection)
}

type session struct {
	connection *connection
	closed     bool
}

func (session *session) usable(step Step) error {
	if session.closed {
		return session.connection.provider.violation(step, "session")
	}
	if session.connection.closed {
		return session.connection.provider.violation(step, "connection")
	}
	return nil
}

func (session *session) CreateTextMessage(text string) (broker.TextMessage, error) {
	if stepErr := session.connection.provider.record(StepCreateMessage); stepErr != nil {
		return broker.TextMessage{}, stepErr
	}
	if usableErr := session.usable(StepCreateMessage); usableErr != nil {
		return broker.TextMessage{}, usableErr
	}
	return broker.NewTextMessage(text), nil
}

func (session *session) CreateSender(_ context.Context, destination broker.Destination) (broker.Sender, error) {
	if stepErr := session.connection.provider.record(StepCreateSender); stepErr != nil {
		return nil, stepErr
	}
	if usableErr := session.usable(StepCreateSender); usableErr != nil {
		return nil, usableErr
	}
	return &sender{session: session, address: destination.Address()}, nil
}

func (session *session) Close(context.Context) error {
	if session.closed {
		return session.connection.provider.violation(StepCloseSession, "session")
	}
	session.closed = true
	return session.connection.provider.record(StepCloseSession)
}

type sender struct {
	session *session
	address string
	closed  bool
}

func (sender *sender) Send(_ context.Context, message broker.TextMessage) error {
	provider := sender.session.connection.provider
	if stepErr := provider.record(StepSend); stepErr != nil {
		return stepErr
	}
	if sender.closed {
		return provider.violation(StepSend, "sender")
	}
	if usableErr := sender.session.usable(StepSend); usableErr != nil {
		return usableErr
	}
	if !sender.session.connection.started {
		return broker.ErrConnectionNotStarted
	}
	provider.Deliveries = append(provider.Deliveries, Delivery{Destination: sender.address, Text: message.Text()})
	return nil
}

func (sender *sender) Close(context.Context) error {
	if sender.closed {
		return sender.session.connection.provider.violation(StepCloseSender, "sender")
	}
	sender.closed = true
	return sender.session.connection.provider.record(StepCloseSender)
}

var _ broker.Provider = (*Provider)(nil)
