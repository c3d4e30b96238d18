// Package broker defines the capabilities the send workflow needs from a
// naming service and a message broker. Concrete providers live in
// subpackages and are selected by their context factory identifier.
package broker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNameNotFound is returned by lookups of names absent from the naming table.
	ErrNameNotFound = errors.New("name not found")
	// ErrUnknownContextFactory is returned when no provider is registered for an identifier.
	ErrUnknownContextFactory = errors.New("unknown context factory")
	// ErrConnectionNotStarted is returned when a message is sent on a stopped connection.
	ErrConnectionNotStarted = errors.New("connection is not started")
	// ErrTransactedSession is returned by providers that only offer non-transacted sessions.
	ErrTransactedSession = errors.New("transacted sessions are not supported")
	// ErrUnsupportedAcknowledgeMode is returned for any mode other than AutoAcknowledge.
	ErrUnsupportedAcknowledgeMode = errors.New("unsupported acknowledge mode")
)

// AcknowledgeMode selects how a session acknowledges delivered messages.
type AcknowledgeMode int

const (
	// AutoAcknowledge acknowledges each message as soon as it is handed over.
	AutoAcknowledge AcknowledgeMode = iota + 1
)

// SessionOptions configures a messaging session.
type SessionOptions struct {
	Transacted  bool
	Acknowledge AcknowledgeMode
}

// Validate rejects anything other than a non-transacted auto-acknowledge session.
func (options SessionOptions) Validate() error {
	if options.Transacted {
		return ErrTransactedSession
	}
	if options.Acknowledge != AutoAcknowledge {
		return fmt.Errorf("%w: %d", ErrUnsupportedAcknowledgeMode, options.Acknowledge)
	}
	return nil
}

// FactoryBinding describes a connection factory registered in the naming table.
// Empty fields fall back to the naming session's own settings.
type FactoryBinding struct {
	URL         string
	ContainerID string
	Exchange    string
}

// Bindings is the naming table resolved by a directory session.
type Bindings struct {
	ConnectionFactories map[string]FactoryBinding
	Destinations        map[string]string
}

// ConnectionFactory resolves a connection factory name.
func (bindings Bindings) ConnectionFactory(name string) (FactoryBinding, error) {
	binding, found := bindings.ConnectionFactories[name]
	if !found {
		return FactoryBinding{}, fmt.Errorf("%w: connection factory %q", ErrNameNotFound, name)
	}
	return binding, nil
}

// Destination resolves a destination name to its physical address.
// A binding with an empty address maps the name onto itself.
func (bindings Bindings) Destination(name string) (string, error) {
	address, found := bindings.Destinations[name]
	if !found {
		return "", fmt.Errorf("%w: destination %q", ErrNameNotFound, name)
	}
	if address == "" {
		return name, nil
	}
	return address, nil
}

// Environment carries the properties required to open a naming session.
type Environment struct {
	ContextFactory string
	ProviderURL    string
	Principal      string
	Credential     string
	Bindings       Bindings
}

// TextMessage is an immutable UTF-8 text payload created by a Session.
type TextMessage struct {
	text string
}

// NewTextMessage wraps text. Providers call it from Session.CreateTextMessage.
func NewTextMessage(text string) TextMessage {
	return TextMessage{text: text}
}

// Text returns the payload.
func (message TextMessage) Text() string {
	return message.text
}

// Provider opens naming sessions for one context factory identifier.
type Provider interface {
	Name() string
	// Schemes lists the URL schemes the provider can connect with.
	Schemes() []string
	Open(ctx context.Context, environment Environment) (DirectorySession, error)
}

// DirectorySession is an authenticated handle into the naming service.
type DirectorySession interface {
	LookupConnectionFactory(ctx context.Context, name string) (ConnectionFactory, error)
	LookupDestination(ctx context.Context, name string) (Destination, error)
	Close(ctx context.Context) error
}

// ConnectionFactory creates broker connections. It is not closed on its own.
type ConnectionFactory interface {
	CreateConnection(ctx context.Context) (Connection, error)
}

// Connection is a broker connection which must be started before delivery.
type Connection interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	CreateSession(ctx context.Context, options SessionOptions) (Session, error)
	Close(ctx context.Context) error
}

// Session creates messages and senders.
type Session interface {
	CreateTextMessage(text string) (TextMessage, error)
	CreateSender(ctx context.Context, destination Destination) (Sender, error)
	Close(ctx context.Context) error
}

// Destination is a resolved delivery target. It is not closed on its own.
type Destination interface {
	Name() string
	Address() string
}

// Sender delivers messages to one destination.
type Sender interface {
	Send(ctx context.Context, message TextMessage) error
	Close(ctx context.Context) error
}

// NamedDestination is the Destination implementation shared by providers.
type NamedDestination struct {
	LogicalName     string
	PhysicalAddress string
}

// Name returns the logical name used for the lookup.
func (destination NamedDestination) Name() string {
	return destination.LogicalName
}

// Address returns the broker address messages are delivered to.
func (destination NamedDestination) Address() string {
	return destination.PhysicalAddress
}

// Registry maps context factory identifiers to providers.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry registers the given providers under their names.
func NewRegistry(providers ...Provider) *Registry {
	registry := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, provider := range providers {
		registry.providers[provider.Name()] = provider
	}
	return registry
}

// Lookup returns the provider registered for the identifier.
func (registry *Registry) Lookup(contextFactory string) (Provider, error) {
	provider, found := registry.providers[contextFactory]
	if !found {
		return nil, fmt.Errorf("%w %q (available: %s)", ErrUnknownContextFactory, contextFactory, strings.Join(registry.Names(), ", "))
	}
	return provider, nil
}

// Names lists the registered identifiers in sorted order.
func (registry *Registry) Names() []string {
	names := make([]string, 0, len(registry.providers))
	for name := range registry.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SupportsScheme reports whether the provider accepts the URL scheme.
func SupportsScheme(provider Provider, scheme string) bool {
	normalized := strings.ToLower(scheme)
	for _, supported := range provider.Schemes() {
		if supported == normalized {
			return true
		}
	}
	return false
}
