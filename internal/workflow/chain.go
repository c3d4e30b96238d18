package workflow

import (
	"context"

	"github.com/temirov/queuesend/internal/broker"
	"github.com/temirov/queuesend/internal/progress"
	"github.com/temirov/queuesend/internal/types"
)

// Resource kinds named in narration and close reports.
const (
	ResourceNamingSession = "naming session"
	ResourceConnection    = "connection"
	ResourceSession       = "session"
)

const (
	openNamingSessionOperation       = "open naming session"
	lookupConnectionFactoryOperation = "lookup connection factory"
	createConnectionOperation        = "create connection"
	createSessionOperation           = "create session"
	lookupDestinationOperation       = "lookup queue"

	openingNamingSessionFormat = "--> opening naming session (%s, user: %s, factory: %s)..."
	lookingUpFactoryFormat     = "--> looking up '%s' connection factory..."
	creatingConnectionMessage  = "--> creating a connection..."
	creatingSessionMessage     = "--> creating a session..."
	lookingUpDestinationFormat = "--> looking up '%s' queue..."
	resolvedDestinationFormat  = "--> '%s' resolved to address '%s'"
)

type closer interface {
	Close(ctx context.Context) error
}

type closeable struct {
	kind     string
	resource closer
}

// resourceChain holds what has been acquired so far. acquired lists the
// closeable resources in acquisition order; teardown walks it backwards.
type resourceChain struct {
	directory   broker.DirectorySession
	factory     broker.ConnectionFactory
	connection  broker.Connection
	session     broker.Session
	destination broker.Destination
	acquired    []closeable
}

func (chain *resourceChain) own(kind string, resource closer) {
	chain.acquired = append(chain.acquired, closeable{kind: kind, resource: resource})
}

// acquire runs the fail-fast acquisition sequence: naming session, connection
// factory, connection, session, destination. A step never runs after a
// failed one.
func (runner *Runner) acquire(ctx context.Context, request Request, environment broker.Environment, chain *resourceChain) error {
	timeout := request.CallTimeout

	runner.report(progress.LevelInfo, openingNamingSessionFormat, environment.ProviderURL, environment.Principal, environment.ContextFactory)
	directory, openErr := call(ctx, timeout, func(callCtx context.Context) (broker.DirectorySession, error) {
		return runner.provider.Open(callCtx, environment)
	})
	if openErr != nil {
		return &types.DirectoryError{Operation: openNamingSessionOperation, Err: openErr}
	}
	chain.directory = directory
	chain.own(ResourceNamingSession, directory)

	runner.report(progress.LevelInfo, lookingUpFactoryFormat, request.ConnectionFactoryName)
	factory, factoryErr := call(ctx, timeout, func(callCtx context.Context) (broker.ConnectionFactory, error) {
		return directory.LookupConnectionFactory(callCtx, request.ConnectionFactoryName)
	})
	if factoryErr != nil {
		return &types.DirectoryError{Operation: lookupConnectionFactoryOperation, Name: request.ConnectionFactoryName, Err: factoryErr}
	}
	chain.factory = factory

	runner.report(progress.LevelDebug, creatingConnectionMessage)
	connection, connectionErr := call(ctx, timeout, factory.CreateConnection)
	if connectionErr != nil {
		return &types.BrokerError{Operation: createConnectionOperation, Err: connectionErr}
	}
	chain.connection = connection
	chain.own(ResourceConnection, connection)

	runner.report(progress.LevelDebug, creatingSessionMessage)
	session, sessionErr := call(ctx, timeout, func(callCtx context.Context) (broker.Session, error) {
		return connection.CreateSession(callCtx, broker.SessionOptions{Transacted: false, Acknowledge: broker.AutoAcknowledge})
	})
	if sessionErr != nil {
		return &types.BrokerError{Operation: createSessionOperation, Err: sessionErr}
	}
	chain.session = session
	chain.own(ResourceSession, session)

	runner.report(progress.LevelInfo, lookingUpDestinationFormat, request.DestinationName)
	destination, destinationErr := call(ctx, timeout, func(callCtx context.Context) (broker.Destination, error) {
		return directory.LookupDestination(callCtx, request.DestinationName)
	})
	if destinationErr != nil {
		return &types.DirectoryError{Operation: lookupDestinationOperation, Name: request.DestinationName, Err: destinationErr}
	}
	chain.destination = destination
	runner.report(progress.LevelDebug, resolvedDestinationFormat, destination.Name(), destination.Address())
	return nil
}
