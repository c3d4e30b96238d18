package workflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"

	"github.com/temirov/queuesend/internal/broker"
	"github.com/temirov/queuesend/internal/broker/brokertest"
	"github.com/temirov/queuesend/internal/input"
	"github.com/temirov/queuesend/internal/progress"
	"github.com/temirov/queuesend/internal/types"
)

const (
	testFactoryName     = "done"
	testDestinationName = "q1"
	testMessage         = "hello"
	testPrincipal       = "weblogic"
	testCredential      = "welcome1"
)

var closeSteps = []brokertest.Step{
	brokertest.StepCloseSender,
	brokertest.StepCloseSession,
	brokertest.StepCloseConnection,
	brokertest.StepCloseDirectory,
}

func newTestRequest() Request {
	return Request{
		Connection: types.ConnectionConfig{
			Protocol:       "t3",
			Host:           "localhost",
			Port:           7001,
			Principal:      testPrincipal,
			ContextFactory: brokertest.ProviderName,
		},
		Bindings: broker.Bindings{
			ConnectionFactories: map[string]broker.FactoryBinding{testFactoryName: {}},
			Destinations:        map[string]string{testDestinationName: ""},
		},
		ConnectionFactoryName: testFactoryName,
		DestinationName:       testDestinationName,
		Password:              input.PasswordSources{Literal: testCredential},
		Message:               input.MessageSources{Literal: testMessage},
		CallTimeout:           time.Second,
	}
}

func TestRunDeliversMessage(t *testing.T) {
	provider := brokertest.NewProvider()
	recorder := &progress.Recorder{}
	outcome := NewRunner(provider, input.Resolver{}, recorder).Run(context.Background(), newTestRequest())

	if outcome.Err != nil {
		t.Fatalf("unexpected error: %v", outcome.Err)
	}
	if outcome.ExitCode() != types.ExitCodeSuccess {
		t.Fatalf("expected exit code 0, got %d", outcome.ExitCode())
	}
	if !outcome.CloseReport.Empty() {
		t.Fatalf("expected empty close report, got %s", outcome.CloseReport.String())
	}

	expectedDeliveries := []brokertest.Delivery{{Destination: testDestinationName, Text: testMessage}}
	if diff := cmp.Diff(expectedDeliveries, provider.Deliveries); diff != "" {
		t.Fatalf("deliveries mismatch (-want +got):\n%s", diff)
	}

	expectedJournal := []brokertest.Step{
		brokertest.StepOpen,
		brokertest.StepLookupFactory,
		brokertest.StepCreateConnection,
		brokertest.StepCreateSession,
		brokertest.StepLookupDestination,
		brokertest.StepStart,
		brokertest.StepCreateMessage,
		brokertest.StepCreateSender,
		brokertest.StepSend,
		brokertest.StepCloseSender,
		brokertest.StepStop,
		brokertest.StepCloseSession,
		brokertest.StepCloseConnection,
		brokertest.StepCloseDirectory,
	}
	if diff := cmp.Diff(expectedJournal, provider.Journal); diff != "" {
		t.Fatalf("journal mismatch (-want +got):\n%s", diff)
	}
	if len(provider.Violations) != 0 {
		t.Fatalf("unexpected violations: %v", provider.Violations)
	}

	if provider.Environment.ProviderURL != "t3://localhost:7001" {
		t.Fatalf("unexpected provider url %q", provider.Environment.ProviderURL)
	}
	if provider.Environment.Principal != testPrincipal || provider.Environment.Credential != testCredential {
		t.Fatalf("unexpected credentials %+v", provider.Environment)
	}
	if provider.Environment.ContextFactory != brokertest.ProviderName {
		t.Fatalf("unexpected context factory %q", provider.Environment.ContextFactory)
	}

	if len(recorder.Messages(progress.LevelInfo)) == 0 {
		t.Fatalf("expected milestone narration")
	}
	debugMessages := strings.Join(recorder.Messages(progress.LevelDebug), "\n")
	if !strings.Contains(debugMessages, "message: 'hello'") {
		t.Fatalf("expected message body in verbose narration, got:\n%s", debugMessages)
	}
}

func TestRunFailureReleasesAcquiredResources(t *testing.T) {
	injected := errors.New("injected")
	testCases := []struct {
		name           string
		failingStep    brokertest.Step
		expectedCloses []brokertest.Step
		expectBroker   bool
	}{
		{
			name:           "open_naming_session",
			failingStep:    brokertest.StepOpen,
			expectedCloses: nil,
		},
		{
			name:           "lookup_factory",
			failingStep:    brokertest.StepLookupFactory,
			expectedCloses: []brokertest.Step{brokertest.StepCloseDirectory},
		},
		{
			name:           "create_connection",
			failingStep:    brokertest.StepCreateConnection,
			expectedCloses: []brokertest.Step{brokertest.StepCloseDirectory},
			expectBroker:   true,
		},
		{
			name:           "create_session",
			failingStep:    brokertest.StepCreateSession,
			expectedCloses: []brokertest.Step{brokertest.StepCloseConnection, brokertest.StepCloseDirectory},
			expectBroker:   true,
		},
		{
			name:           "lookup_destination",
			failingStep:    brokertest.StepLookupDestination,
			expectedCloses: []brokertest.Step{brokertest.StepCloseSession, brokertest.StepCloseConnection, brokertest.StepCloseDirectory},
		},
		{
			name:           "start",
			failingStep:    brokertest.StepStart,
			expectedCloses: []brokertest.Step{brokertest.StepCloseSession, brokertest.StepCloseConnection, brokertest.StepCloseDirectory},
			expectBroker:   true,
		},
		{
			name:           "create_message",
			failingStep:    brokertest.StepCreateMessage,
			expectedCloses: []brokertest.Step{brokertest.StepCloseSession, brokertest.StepCloseConnection, brokertest.StepCloseDirectory},
			expectBroker:   true,
		},
		{
			name:           "create_sender",
			failingStep:    brokertest.StepCreateSender,
			expectedCloses: []brokertest.Step{brokertest.StepCloseSession, brokertest.StepCloseConnection, brokertest.StepCloseDirectory},
			expectBroker:   true,
		},
		{
			name:        "send",
			failingStep: brokertest.StepSend,
			expectedCloses: []brokertest.Step{
				brokertest.StepCloseSender, brokertest.StepCloseSession, brokertest.StepCloseConnection, brokertest.StepCloseDirectory,
			},
			expectBroker: true,
		},
		{
			name:        "stop",
			failingStep: brokertest.StepStop,
			expectedCloses: []brokertest.Step{
				brokertest.StepCloseSender, brokertest.StepCloseSession, brokertest.StepCloseConnection, brokertest.StepCloseDirectory,
			},
			expectBroker: true,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			provider := brokertest.NewProvider().FailAt(testCase.failingStep, injected)
			outcome := NewRunner(provider, input.Resolver{}, nil).Run(context.Background(), newTestRequest())

			if outcome.ExitCode() != types.ExitCodeRuntimeError {
				t.Fatalf("expected exit code 2, got %d (%v)", outcome.ExitCode(), outcome.Err)
			}
			if !errors.Is(outcome.Err, injected) {
				t.Fatalf("expected injected cause, got %v", outcome.Err)
			}
			var brokerError *types.BrokerError
			var directoryError *types.DirectoryError
			if testCase.expectBroker && !errors.As(outcome.Err, &brokerError) {
				t.Fatalf("expected BrokerError, got %T", outcome.Err)
			}
			if !testCase.expectBroker && !errors.As(outcome.Err, &directoryError) {
				t.Fatalf("expected DirectoryError, got %T", outcome.Err)
			}
			if diff := cmp.Diff(testCase.expectedCloses, provider.Steps(closeSteps...)); diff != "" {
				t.Fatalf("close sequence mismatch (-want +got):\n%s", diff)
			}
			if len(provider.Deliveries) != 0 && testCase.failingStep != brokertest.StepStop {
				t.Fatalf("unexpected deliveries %v", provider.Deliveries)
			}
			if len(provider.Violations) != 0 {
				t.Fatalf("unexpected violations: %v", provider.Violations)
			}
			if testCase.failingStep == brokertest.StepCreateMessage && len(provider.Steps(brokertest.StepCreateSender)) != 0 {
				t.Fatalf("expected no sender after a failed message creation, got %v", provider.Journal)
			}
			if last := provider.Journal[len(provider.Journal)-1]; len(testCase.expectedCloses) == 0 && last != testCase.failingStep {
				t.Fatalf("expected no step after %s, got %s", testCase.failingStep, last)
			}
		})
	}
}

func TestRunUnboundNamesAreDirectoryErrors(t *testing.T) {
	testCases := []struct {
		name          string
		mutate        func(*Request)
		expectedName  string
		expectedSteps []brokertest.Step
	}{
		{
			name:         "unknown_connection_factory",
			mutate:       func(request *Request) { request.ConnectionFactoryName = "missing" },
			expectedName: "missing",
			expectedSteps: []brokertest.Step{
				brokertest.StepOpen, brokertest.StepLookupFactory, brokertest.StepCloseDirectory,
			},
		},
		{
			name:         "unknown_queue",
			mutate:       func(request *Request) { request.DestinationName = "q2" },
			expectedName: "q2",
			expectedSteps: []brokertest.Step{
				brokertest.StepOpen,
				brokertest.StepLookupFactory,
				brokertest.StepCreateConnection,
				brokertest.StepCreateSession,
				brokertest.StepLookupDestination,
				brokertest.StepCloseSession,
				brokertest.StepCloseConnection,
				brokertest.StepCloseDirectory,
			},
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			provider := brokertest.NewProvider()
			request := newTestRequest()
			testCase.mutate(&request)
			outcome := NewRunner(provider, input.Resolver{}, nil).Run(context.Background(), request)

			var directoryError *types.DirectoryError
			if !errors.As(outcome.Err, &directoryError) {
				t.Fatalf("expected DirectoryError, got %v", outcome.Err)
			}
			if directoryError.Name != testCase.expectedName || !errors.Is(outcome.Err, broker.ErrNameNotFound) {
				t.Fatalf("unexpected directory error %v", directoryError)
			}
			if outcome.ExitCode() != types.ExitCodeRuntimeError {
				t.Fatalf("expected exit code 2, got %d", outcome.ExitCode())
			}
			if diff := cmp.Diff(testCase.expectedSteps, provider.Journal); diff != "" {
				t.Fatalf("journal mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRunCloseFailuresDoNotChangeOutcome(t *testing.T) {
	testCases := []struct {
		name              string
		failingSteps      []brokertest.Step
		expectedResources []string
	}{
		{
			name:              "session_close_fails",
			failingSteps:      []brokertest.Step{brokertest.StepCloseSession},
			expectedResources: []string{ResourceSession},
		},
		{
			name:              "every_close_fails",
			failingSteps:      []brokertest.Step{brokertest.StepCloseSession, brokertest.StepCloseConnection, brokertest.StepCloseDirectory},
			expectedResources: []string{ResourceSession, ResourceConnection, ResourceNamingSession},
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			provider := brokertest.NewProvider()
			for _, step := range testCase.failingSteps {
				provider.FailAt(step, errors.New("refused"))
			}
			outcome := NewRunner(provider, input.Resolver{}, nil).Run(context.Background(), newTestRequest())

			if outcome.Err != nil || outcome.ExitCode() != types.ExitCodeSuccess {
				t.Fatalf("close failures must not change the outcome, got %v", outcome.Err)
			}
			var resources []string
			for _, failure := range outcome.CloseReport.Failures() {
				resources = append(resources, failure.Resource)
			}
			if diff := cmp.Diff(testCase.expectedResources, resources); diff != "" {
				t.Fatalf("close report mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(closeSteps, provider.Steps(closeSteps...)); diff != "" {
				t.Fatalf("every close must be attempted (-want +got):\n%s", diff)
			}
			if outcome.CloseReport.Err() == nil {
				t.Fatalf("expected combined close error")
			}
		})
	}
}

func TestRunSenderCloseFailureIsBrokerError(t *testing.T) {
	provider := brokertest.NewProvider().FailAt(brokertest.StepCloseSender, errors.New("link detached"))
	outcome := NewRunner(provider, input.Resolver{}, nil).Run(context.Background(), newTestRequest())

	var brokerError *types.BrokerError
	if !errors.As(outcome.Err, &brokerError) || brokerError.Operation != closeSenderOperation {
		t.Fatalf("expected close sender BrokerError, got %v", outcome.Err)
	}
	if len(provider.Steps(brokertest.StepStop)) != 0 {
		t.Fatalf("connection must not be stopped after a failed dispatch")
	}
}

func TestRunUsageErrorsAcquireNothing(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Request)
	}{
		{name: "no_password", mutate: func(request *Request) { request.Password = input.PasswordSources{} }},
		{name: "both_passwords", mutate: func(request *Request) { request.Password.Interactive = true }},
		{name: "no_message", mutate: func(request *Request) { request.Message = input.MessageSources{} }},
		{name: "message_and_file", mutate: func(request *Request) { request.Message.FilePath = "body.txt" }},
		{name: "message_and_clipboard", mutate: func(request *Request) { request.Message.Clipboard = true }},
		{name: "no_connection_factory", mutate: func(request *Request) { request.ConnectionFactoryName = "" }},
		{name: "no_queue", mutate: func(request *Request) { request.DestinationName = "" }},
		{name: "unsupported_protocol", mutate: func(request *Request) { request.Connection.Protocol = "http" }},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			provider := brokertest.NewProvider()
			request := newTestRequest()
			testCase.mutate(&request)
			outcome := NewRunner(provider, input.Resolver{}, nil).Run(context.Background(), request)

			var usageError *types.UsageError
			if !errors.As(outcome.Err, &usageError) {
				t.Fatalf("expected UsageError, got %v", outcome.Err)
			}
			if outcome.ExitCode() != types.ExitCodeUsageError {
				t.Fatalf("expected exit code 1, got %d", outcome.ExitCode())
			}
			if len(provider.Journal) != 0 {
				t.Fatalf("expected no broker interaction, got %v", provider.Journal)
			}
		})
	}
}

func TestRunMessageFromFileIsVerbatim(t *testing.T) {
	content := "  line one\nline two\n\n"
	messagePath := filepath.Join(t.TempDir(), "message.txt")
	if writeErr := os.WriteFile(messagePath, []byte(content), 0o600); writeErr != nil {
		t.Fatalf("write message: %v", writeErr)
	}
	provider := brokertest.NewProvider()
	request := newTestRequest()
	request.Message = input.MessageSources{FilePath: messagePath}

	outcome := NewRunner(provider, input.Resolver{}, nil).Run(context.Background(), request)
	if outcome.Err != nil {
		t.Fatalf("unexpected error: %v", outcome.Err)
	}
	if len(provider.Deliveries) != 1 || provider.Deliveries[0].Text != content {
		t.Fatalf("expected verbatim file content, got %#v", provider.Deliveries)
	}
}

func TestRunMessageFileInvalidUTF8IsReplaced(t *testing.T) {
	messagePath := filepath.Join(t.TempDir(), "message.bin")
	if writeErr := os.WriteFile(messagePath, []byte{'h', 0xff, 'i'}, 0o600); writeErr != nil {
		t.Fatalf("write message: %v", writeErr)
	}
	provider := brokertest.NewProvider()
	request := newTestRequest()
	request.Message = input.MessageSources{FilePath: messagePath}

	outcome := NewRunner(provider, input.Resolver{}, nil).Run(context.Background(), request)
	if outcome.Err != nil {
		t.Fatalf("unexpected error: %v", outcome.Err)
	}
	if len(provider.Deliveries) != 1 {
		t.Fatalf("expected one delivery, got %#v", provider.Deliveries)
	}
	delivered := provider.Deliveries[0].Text
	if delivered != "h\uFFFDi" || !utf8.ValidString(delivered) {
		t.Fatalf("expected replacement character for the invalid byte, got %q", delivered)
	}
}

func TestRunUnreadableMessageFileFailsBeforeOpening(t *testing.T) {
	provider := brokertest.NewProvider()
	request := newTestRequest()
	request.Message = input.MessageSources{FilePath: filepath.Join(t.TempDir(), "missing.txt")}

	outcome := NewRunner(provider, input.Resolver{}, nil).Run(context.Background(), request)
	var inputError *types.InputError
	if !errors.As(outcome.Err, &inputError) {
		t.Fatalf("expected InputError, got %v", outcome.Err)
	}
	if outcome.ExitCode() != types.ExitCodeRuntimeError {
		t.Fatalf("expected exit code 2, got %d", outcome.ExitCode())
	}
	if len(provider.Journal) != 0 {
		t.Fatalf("expected no broker interaction, got %v", provider.Journal)
	}
}

type stubPrompter struct {
	password string
	prompts  int
}

func (prompter *stubPrompter) ReadPassword(string) (string, error) {
	prompter.prompts++
	return prompter.password, nil
}

func TestRunInteractivePasswordReachesNamingSession(t *testing.T) {
	provider := brokertest.NewProvider()
	prompter := &stubPrompter{password: "typed-secret"}
	request := newTestRequest()
	request.Password = input.PasswordSources{Interactive: true}

	outcome := NewRunner(provider, input.Resolver{Prompter: prompter}, nil).Run(context.Background(), request)
	if outcome.Err != nil {
		t.Fatalf("unexpected error: %v", outcome.Err)
	}
	if prompter.prompts != 1 {
		t.Fatalf("expected one prompt, got %d", prompter.prompts)
	}
	if provider.Environment.Credential != "typed-secret" {
		t.Fatalf("expected prompted credential, got %q", provider.Environment.Credential)
	}
}

type panickingProvider struct {
	directory *panickingDirectory
}

func (provider *panickingProvider) Name() string      { return "panicking" }
func (provider *panickingProvider) Schemes() []string { return []string{"t3"} }
func (provider *panickingProvider) Open(context.Context, broker.Environment) (broker.DirectorySession, error) {
	return provider.directory, nil
}

type panickingDirectory struct {
	closeContextErr error
	closes          int
}

func (directory *panickingDirectory) LookupConnectionFactory(context.Context, string) (broker.ConnectionFactory, error) {
	return nil, broker.ErrNameNotFound
}

func (directory *panickingDirectory) LookupDestination(context.Context, string) (broker.Destination, error) {
	return nil, broker.ErrNameNotFound
}

func (directory *panickingDirectory) Close(ctx context.Context) error {
	directory.closes++
	directory.closeContextErr = ctx.Err()
	panic("naming service exploded")
}

func TestTeardownIsolatesPanicsAndIgnoresCancellation(t *testing.T) {
	directory := &panickingDirectory{}
	provider := &panickingProvider{directory: directory}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var outcome Outcome
	func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				t.Fatalf("panic escaped teardown: %v", recovered)
			}
		}()
		outcome = NewRunner(provider, input.Resolver{}, nil).Run(ctx, newTestRequest())
	}()

	if outcome.ExitCode() != types.ExitCodeRuntimeError {
		t.Fatalf("expected exit code 2, got %d", outcome.ExitCode())
	}
	if directory.closes != 1 {
		t.Fatalf("expected exactly one close, got %d", directory.closes)
	}
	if directory.closeContextErr != nil {
		t.Fatalf("close must not observe the caller's cancellation, got %v", directory.closeContextErr)
	}
	failures := outcome.CloseReport.Failures()
	if len(failures) != 1 || failures[0].Resource != ResourceNamingSession {
		t.Fatalf("expected naming session close failure, got %v", failures)
	}
}

func TestReportOutcome(t *testing.T) {
	closeFailure := CloseReport{}
	closeFailure.add(ResourceConnection, errors.New("reset by peer"))

	testCases := []struct {
		name             string
		outcome          Outcome
		expectedExitCode int
		expectedEntries  []progress.Entry
	}{
		{
			name:             "success",
			outcome:          Outcome{},
			expectedExitCode: types.ExitCodeSuccess,
			expectedEntries: []progress.Entry{
				{Level: progress.LevelInfo, Message: "message has been sent successfully"},
				{Level: progress.LevelInfo, Message: "Return code: 0"},
			},
		},
		{
			name:             "usage_error",
			outcome:          Outcome{Err: types.NewUsageError("the queue name is required")},
			expectedExitCode: types.ExitCodeUsageError,
			expectedEntries: []progress.Entry{
				{Level: progress.LevelError, Message: "ERROR: usage error: the queue name is required"},
				{Level: progress.LevelError, Message: "Return code: 1"},
			},
		},
		{
			name:             "success_with_close_warning",
			outcome:          Outcome{CloseReport: closeFailure},
			expectedExitCode: types.ExitCodeSuccess,
			expectedEntries: []progress.Entry{
				{Level: progress.LevelInfo, Message: "message has been sent successfully"},
				{Level: progress.LevelWarn, Message: "WARNING: an unexpected error occurred while closing the connection: reset by peer"},
				{Level: progress.LevelInfo, Message: "Return code: 0"},
			},
		},
		{
			name:             "runtime_error",
			outcome:          Outcome{Err: &types.BrokerError{Operation: "send message", Err: errors.New("refused")}},
			expectedExitCode: types.ExitCodeRuntimeError,
			expectedEntries: []progress.Entry{
				{Level: progress.LevelError, Message: "ERROR: broker error: send message: refused"},
				{Level: progress.LevelError, Message: "Return code: 2"},
			},
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			recorder := &progress.Recorder{}
			exitCode := ReportOutcome(recorder, testCase.outcome)
			if exitCode != testCase.expectedExitCode {
				t.Fatalf("expected exit code %d, got %d", testCase.expectedExitCode, exitCode)
			}
			if diff := cmp.Diff(testCase.expectedEntries, recorder.Entries); diff != "" {
				t.Fatalf("entries mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
