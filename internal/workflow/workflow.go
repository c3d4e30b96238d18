// Package workflow runs one send: it resolves the inputs, acquires the
// naming session and the resources derived from it in order, dispatches a
// single text message, and always tears down whatever was acquired.
package workflow

import (
	"context"
	"time"

	"github.com/temirov/queuesend/internal/broker"
	"github.com/temirov/queuesend/internal/input"
	"github.com/temirov/queuesend/internal/progress"
	"github.com/temirov/queuesend/internal/types"
)

const (
	missingNameFormat       = "the %s name is required (--%s)"
	unsupportedSchemeFormat = "protocol %q is not supported by context factory %q (supported: %v)"
	connectionFactoryKind   = "connection factory"
	connectionFactoryFlag   = "connection-factory"
	destinationKind         = "queue"
	destinationFlag         = "queue"
)

// Request is everything one send needs. Connection.Credential is filled in
// from the password sources when the workflow runs.
type Request struct {
	Connection            types.ConnectionConfig
	Bindings              broker.Bindings
	ConnectionFactoryName string
	DestinationName       string
	Password              input.PasswordSources
	Message               input.MessageSources
	// CallTimeout bounds every network call; zero means unbounded.
	CallTimeout time.Duration
}

// Validate reports argument-level problems as a UsageError.
func (request Request) Validate(provider broker.Provider) error {
	if request.ConnectionFactoryName == "" {
		return types.NewUsageError(missingNameFormat, connectionFactoryKind, connectionFactoryFlag)
	}
	if request.DestinationName == "" {
		return types.NewUsageError(missingNameFormat, destinationKind, destinationFlag)
	}
	if passwordErr := request.Password.Validate(); passwordErr != nil {
		return passwordErr
	}
	if messageErr := request.Message.Validate(); messageErr != nil {
		return messageErr
	}
	if !broker.SupportsScheme(provider, request.Connection.Protocol) {
		return types.NewUsageError(unsupportedSchemeFormat, request.Connection.Protocol, provider.Name(), provider.Schemes())
	}
	return nil
}

// Outcome is the result of one run. Err is the first fatal error, if any;
// close failures are kept apart in CloseReport and never change ExitCode.
type Outcome struct {
	Err         error
	CloseReport CloseReport
}

// ExitCode maps the outcome to the process exit code.
func (outcome Outcome) ExitCode() int {
	return types.ExitCodeFor(outcome.Err)
}

// Runner executes send workflows against one provider.
type Runner struct {
	provider broker.Provider
	resolver input.Resolver
	progress progress.Sink
}

// NewRunner wires the provider, the input resolver and the progress sink.
func NewRunner(provider broker.Provider, resolver input.Resolver, sink progress.Sink) *Runner {
	if sink == nil {
		sink = progress.Discard
	}
	if resolver.Progress == nil {
		resolver.Progress = sink
	}
	return &Runner{provider: provider, resolver: resolver, progress: sink}
}

// Run performs the whole send. It never panics on resource failures and
// always attempts teardown of every acquired resource exactly once.
func (runner *Runner) Run(ctx context.Context, request Request) Outcome {
	if validationErr := request.Validate(runner.provider); validationErr != nil {
		return Outcome{Err: validationErr}
	}
	chain := &resourceChain{}
	runErr := runner.execute(ctx, request, chain)
	report := runner.teardown(ctx, request.CallTimeout, chain)
	return Outcome{Err: runErr, CloseReport: report}
}

func (runner *Runner) execute(ctx context.Context, request Request, chain *resourceChain) error {
	password, passwordErr := runner.resolver.Password(request.Password)
	if passwordErr != nil {
		return passwordErr
	}
	payload, messageErr := runner.resolver.Message(request.Message)
	if messageErr != nil {
		return messageErr
	}

	connection := request.Connection
	connection.Credential = password
	environment := broker.Environment{
		ContextFactory: connection.ContextFactory,
		ProviderURL:    connection.ProviderURL(),
		Principal:      connection.Principal,
		Credential:     connection.Credential,
		Bindings:       request.Bindings,
	}

	if acquireErr := runner.acquire(ctx, request, environment, chain); acquireErr != nil {
		return acquireErr
	}
	return runner.dispatch(ctx, request.CallTimeout, chain, payload)
}

func (runner *Runner) report(level progress.Level, format string, arguments ...any) {
	progress.Reportf(runner.progress, level, format, arguments...)
}

// withCallTimeout bounds a single blocking call.
func withCallTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func call[T any](ctx context.Context, timeout time.Duration, operation func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := withCallTimeout(ctx, timeout)
	defer cancel()
	return operation(callCtx)
}

func callErr(ctx context.Context, timeout time.Duration, operation func(context.Context) error) error {
	callCtx, cancel := withCallTimeout(ctx, timeout)
	defer cancel()
	return operation(callCtx)
}
