// Package cli provides the command line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/temirov/queuesend/internal/broker"
	"github.com/temirov/queuesend/internal/config"
	"github.com/temirov/queuesend/internal/input"
	"github.com/temirov/queuesend/internal/progress"
	"github.com/temirov/queuesend/internal/types"
	"github.com/temirov/queuesend/internal/utils"
	"github.com/temirov/queuesend/internal/workflow"
)

const (
	protocolFlagName          = "protocol"
	hostFlagName              = "host"
	portFlagName              = "port"
	userFlagName              = "user"
	contextFactoryFlagName    = "context-factory"
	connectionFactoryFlagName = "connection-factory"
	queueFlagName             = "queue"
	verboseFlagName           = "verbose"
	timeoutFlagName           = "timeout"
	configFlagName            = "config"
	versionFlagName           = "version"
	forceFlagName             = "force"
	globalFlagName            = "global"

	defaultProtocol       = "amqp"
	defaultHost           = "localhost"
	defaultPort           = 5672
	defaultUser           = "guest"
	defaultContextFactory = "amqp10"
	defaultTimeout        = 30 * time.Second
	minimumPort           = 1
	maximumPort           = 65535

	protocolFlagDescription            = "protocol used to reach the naming service"
	hostFlagDescription                = "naming service host"
	portFlagDescription                = "naming service port"
	userFlagDescription                = "user name for the naming service"
	passwordFlagDescription            = "password for the user"
	interactivePasswordFlagDescription = "prompt for the password without echo"
	contextFactoryFlagDescription      = "context factory used to open the naming session"
	connectionFactoryFlagDescription   = "name of the connection factory to look up"
	queueFlagDescription               = "name of the queue to look up"
	messageFlagDescription             = "message text to send"
	messageFileFlagDescription         = "file whose content is sent as the message"
	messageClipboardFlagDescription    = "send the clipboard content as the message"
	verboseFlagDescription             = "narrate every step"
	timeoutFlagDescription             = "bound for each network call (0 disables)"
	configFlagDescription              = "configuration file to use instead of ./config.yaml"
	versionFlagDescription             = "display application version"
	forceFlagDescription               = "overwrite an existing configuration file"
	globalFlagDescription              = "write ~/.queuesend/config.yaml instead of ./config.yaml"

	rootUse              = "queuesend"
	rootShortDescription = "send a single text message to a queue"
	rootLongDescription  = `queuesend opens a naming session, looks up a connection factory and a queue
by name, and sends exactly one text message to that queue.
Defaults may come from ~/.queuesend/config.yaml, ./config.yaml (or --config)
and QUEUESEND_* environment variables; explicit flags win.`
	rootUsageExample = `  # Send a literal message
  queuesend -c done -q q1 -p secret -m hello

  # Send a file through a RabbitMQ broker, prompting for the password
  queuesend -I rabbitmq -H broker.local -c orders -q incoming -i -f order.json`
	sendUse              = "send"
	sendShortDescription = "send a single text message (same as the root command)"
	initUse              = "init"
	initShortDescription = "write a default configuration file"

	exitCodesFooter = `
Exit codes:
  0  the message has been sent
  1  usage error (missing, conflicting or invalid arguments)
  2  runtime error (naming, broker or input failure)
`

	versionTemplate           = "queuesend version: %s\n"
	initializedTemplate       = "configuration written to %s\n"
	unexpectedArgumentsFormat = "unexpected arguments: %s"
	invalidPortFormat         = "port %d is out of range %d-%d"
	invalidTimeoutFormat      = "invalid timeout %q: %v"
	negativeTimeoutFormat     = "timeout %s must not be negative"
	configurationErrorFormat  = "%v"
	verboseEnabledMessage     = "--> verbose mode enabled"
)

// Dependencies wires the services the commands use. Execute defaults a nil
// Output to stdout and a nil NewLogger to the application logger. A nil
// Registry knows no context factories, and a nil Prompter or Clipboard
// makes the matching input source report itself unavailable.
type Dependencies struct {
	Registry         *broker.Registry
	Prompter         input.Prompter
	Clipboard        input.ClipboardReader
	ReadFile         input.FileReader
	NewLogger        func(level zap.AtomicLevel) *zap.Logger
	Output           io.Writer
	WorkingDirectory string
}

type application struct {
	dependencies Dependencies
	level        zap.AtomicLevel
	progress     progress.Sink
	exitCode     int
}

// sendOptions stores the flags of the send action.
type sendOptions struct {
	protocol            string
	host                string
	port                int
	user                string
	password            string
	interactivePassword bool
	contextFactory      string
	connectionFactory   string
	queue               string
	message             string
	messageFile         string
	messageClipboard    bool
	timeout             time.Duration
	configPath          string
}

// Execute runs the queuesend application and returns the process exit code.
func Execute(ctx context.Context, arguments []string, dependencies Dependencies) int {
	if dependencies.Output == nil {
		dependencies.Output = os.Stdout
	}
	if dependencies.Registry == nil {
		dependencies.Registry = broker.NewRegistry()
	}
	if dependencies.NewLogger == nil {
		dependencies.NewLogger = func(level zap.AtomicLevel) *zap.Logger {
			return utils.NewApplicationLogger(utils.LoggerOptions{Level: level})
		}
	}
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	logger := dependencies.NewLogger(level)
	defer func() { _ = logger.Sync() }()

	app := &application{
		dependencies: dependencies,
		level:        level,
		progress:     progress.NewZapSink(logger),
	}
	rootCommand := app.createRootCommand()
	rootCommand.SetArgs(normalizeBooleanFlagArguments(rootCommand, arguments))
	rootCommand.SetOut(dependencies.Output)
	rootCommand.SetErr(dependencies.Output)

	executedCommand, executeErr := rootCommand.ExecuteContextC(ctx)
	if executeErr == nil {
		return app.exitCode
	}
	var usageError *types.UsageError
	if errors.As(executeErr, &usageError) && executedCommand != nil {
		fmt.Fprint(dependencies.Output, executedCommand.UsageString())
	}
	return workflow.ReportOutcome(app.progress, workflow.Outcome{Err: executeErr})
}

// createRootCommand builds the root Cobra command.
func (app *application) createRootCommand() *cobra.Command {
	var showVersion bool
	var verbose bool
	options := &sendOptions{}

	rootCommand := &cobra.Command{
		Use:           rootUse,
		Short:         rootShortDescription,
		Long:          rootLongDescription,
		Example:       rootUsageExample,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          rejectArguments,
		PersistentPreRunE: func(command *cobra.Command, arguments []string) error {
			if verbose {
				app.level.SetLevel(zapcore.DebugLevel)
				app.progress.Report(progress.LevelDebug, verboseEnabledMessage)
			}
			return nil
		},
		RunE: func(command *cobra.Command, arguments []string) error {
			if showVersion {
				fmt.Fprintf(command.OutOrStdout(), versionTemplate, utils.GetApplicationVersion())
				return nil
			}
			return app.runSend(command, options)
		},
	}
	rootCommand.Flags().BoolVar(&showVersion, versionFlagName, false, versionFlagDescription)
	registerBooleanFlag(rootCommand.PersistentFlags(), &verbose, booleanFlag{name: verboseFlagName, shorthand: "v", usage: verboseFlagDescription})
	addSendFlags(rootCommand.Flags(), options)
	rootCommand.SetFlagErrorFunc(func(command *cobra.Command, flagErr error) error {
		return types.NewUsageError(configurationErrorFormat, flagErr)
	})
	rootCommand.AddCommand(
		app.createSendCommand(),
		app.createInitCommand(),
	)
	rootCommand.InitDefaultHelpCmd()
	rootCommand.InitDefaultCompletionCmd()
	rootCommand.SetUsageTemplate(rootCommand.UsageTemplate() + exitCodesFooter)
	return rootCommand
}

func (app *application) createSendCommand() *cobra.Command {
	options := &sendOptions{}
	sendCommand := &cobra.Command{
		Use:     sendUse,
		Short:   sendShortDescription,
		Long:    rootLongDescription,
		Example: strings.ReplaceAll(rootUsageExample, rootUse+" ", rootUse+" "+sendUse+" "),
		Args:    rejectArguments,
		RunE: func(command *cobra.Command, arguments []string) error {
			return app.runSend(command, options)
		},
	}
	addSendFlags(sendCommand.Flags(), options)
	return sendCommand
}

func (app *application) createInitCommand() *cobra.Command {
	var force bool
	var global bool
	initCommand := &cobra.Command{
		Use:   initUse,
		Short: initShortDescription,
		Args:  rejectArguments,
		RunE: func(command *cobra.Command, arguments []string) error {
			target := config.InitTargetLocal
			if global {
				target = config.InitTargetGlobal
			}
			path, initErr := config.InitializeConfiguration(config.InitOptions{
				Target:           target,
				Force:            force,
				WorkingDirectory: app.dependencies.WorkingDirectory,
			})
			if initErr != nil {
				return initErr
			}
			fmt.Fprintf(command.OutOrStdout(), initializedTemplate, path)
			return nil
		},
	}
	registerBooleanFlag(initCommand.Flags(), &force, booleanFlag{name: forceFlagName, usage: forceFlagDescription})
	registerBooleanFlag(initCommand.Flags(), &global, booleanFlag{name: globalFlagName, usage: globalFlagDescription})
	return initCommand
}

// addSendFlags registers the connection, name, password and message flags.
func addSendFlags(flagSet *pflag.FlagSet, options *sendOptions) {
	flagSet.StringVarP(&options.protocol, protocolFlagName, "T", defaultProtocol, protocolFlagDescription)
	flagSet.StringVarP(&options.host, hostFlagName, "H", defaultHost, hostFlagDescription)
	flagSet.IntVarP(&options.port, portFlagName, "P", defaultPort, portFlagDescription)
	flagSet.StringVarP(&options.user, userFlagName, "u", defaultUser, userFlagDescription)
	flagSet.StringVarP(&options.password, input.PasswordOption, "p", "", passwordFlagDescription)
	registerBooleanFlag(flagSet, &options.interactivePassword, booleanFlag{
		name: input.InteractivePasswordOption, shorthand: "i", usage: interactivePasswordFlagDescription, selectsSource: true,
	})
	flagSet.StringVarP(&options.contextFactory, contextFactoryFlagName, "I", defaultContextFactory, contextFactoryFlagDescription)
	flagSet.StringVarP(&options.connectionFactory, connectionFactoryFlagName, "c", "", connectionFactoryFlagDescription)
	flagSet.StringVarP(&options.queue, queueFlagName, "q", "", queueFlagDescription)
	flagSet.StringVarP(&options.message, input.MessageOption, "m", "", messageFlagDescription)
	flagSet.StringVarP(&options.messageFile, input.MessageFileOption, "f", "", messageFileFlagDescription)
	registerBooleanFlag(flagSet, &options.messageClipboard, booleanFlag{
		name: input.MessageClipboardOption, usage: messageClipboardFlagDescription, selectsSource: true,
	})
	flagSet.DurationVar(&options.timeout, timeoutFlagName, defaultTimeout, timeoutFlagDescription)
	flagSet.StringVar(&options.configPath, configFlagName, "", configFlagDescription)
}

func rejectArguments(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return types.NewUsageError(unexpectedArgumentsFormat, strings.Join(arguments, " "))
	}
	return nil
}

// runSend resolves the request, runs the workflow and reports the outcome.
// Usage errors are returned so that Execute prints the usage text.
func (app *application) runSend(command *cobra.Command, options *sendOptions) error {
	request, provider, requestErr := app.buildRequest(command.Flags(), options)
	if requestErr != nil {
		return requestErr
	}
	runner := workflow.NewRunner(provider, input.Resolver{
		Prompter:  app.dependencies.Prompter,
		Clipboard: app.dependencies.Clipboard,
		ReadFile:  app.dependencies.ReadFile,
		Progress:  app.progress,
	}, app.progress)

	outcome := runner.Run(command.Context(), request)
	var usageError *types.UsageError
	if errors.As(outcome.Err, &usageError) {
		return outcome.Err
	}
	app.exitCode = workflow.ReportOutcome(app.progress, outcome)
	return nil
}

// buildRequest merges configuration, environment and flags. A flag wins
// only when it was given explicitly.
func (app *application) buildRequest(flagSet *pflag.FlagSet, options *sendOptions) (workflow.Request, broker.Provider, error) {
	configuration, loadErr := config.LoadApplicationConfiguration(config.LoadOptions{
		WorkingDirectory: app.dependencies.WorkingDirectory,
		ExplicitFilePath: options.configPath,
	})
	if loadErr != nil {
		return workflow.Request{}, nil, types.NewUsageError(configurationErrorFormat, loadErr)
	}
	configured := configuration.Connection

	port := options.port
	if !flagSet.Changed(portFlagName) && configured.Port != nil {
		port = *configured.Port
	}
	if port < minimumPort || port > maximumPort {
		return workflow.Request{}, nil, types.NewUsageError(invalidPortFormat, port, minimumPort, maximumPort)
	}

	timeout := options.timeout
	if !flagSet.Changed(timeoutFlagName) && configured.Timeout != "" {
		parsed, parseErr := time.ParseDuration(configured.Timeout)
		if parseErr != nil {
			return workflow.Request{}, nil, types.NewUsageError(invalidTimeoutFormat, configured.Timeout, parseErr)
		}
		timeout = parsed
	}
	if timeout < 0 {
		return workflow.Request{}, nil, types.NewUsageError(negativeTimeoutFormat, timeout)
	}

	contextFactory := chooseString(flagSet, contextFactoryFlagName, options.contextFactory, configured.ContextFactory)
	provider, lookupErr := app.dependencies.Registry.Lookup(contextFactory)
	if lookupErr != nil {
		return workflow.Request{}, nil, types.NewUsageError(configurationErrorFormat, lookupErr)
	}

	passwordLiteral := options.password
	if !flagSet.Changed(input.PasswordOption) && !options.interactivePassword {
		passwordLiteral = configured.Password
	}

	request := workflow.Request{
		Connection: types.ConnectionConfig{
			Protocol:       chooseString(flagSet, protocolFlagName, options.protocol, configured.Protocol),
			Host:           chooseString(flagSet, hostFlagName, options.host, configured.Host),
			Port:           port,
			Principal:      chooseString(flagSet, userFlagName, options.user, configured.User),
			ContextFactory: contextFactory,
		},
		Bindings:              configuration.Bindings.NamingTable(),
		ConnectionFactoryName: options.connectionFactory,
		DestinationName:       options.queue,
		Password: input.PasswordSources{
			Literal:     passwordLiteral,
			Interactive: options.interactivePassword,
		},
		Message: input.MessageSources{
			Literal:   options.message,
			FilePath:  options.messageFile,
			Clipboard: options.messageClipboard,
		},
		CallTimeout: timeout,
	}
	return request, provider, nil
}

func chooseString(flagSet *pflag.FlagSet, flagName string, flagValue string, configuredValue string) string {
	if flagSet.Changed(flagName) || configuredValue == "" {
		return flagValue
	}
	return configuredValue
}
