package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/temirov/queuesend/internal/broker"
	"github.com/temirov/queuesend/internal/broker/amqp10"
	"github.com/temirov/queuesend/internal/broker/rabbitmq"
	"github.com/temirov/queuesend/internal/cli"
	"github.com/temirov/queuesend/internal/services/clipboard"
	"github.com/temirov/queuesend/internal/services/terminal"
)

// main is the entry point for the queuesend command.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	exitCode := cli.Execute(ctx, os.Args[1:], cli.Dependencies{
		Registry:  broker.NewRegistry(amqp10.NewProvider(), rabbitmq.NewProvider()),
		Prompter:  terminal.NewPrompter(os.Stdin, os.Stderr),
		Clipboard: clipboard.NewService(),
		ReadFile:  os.ReadFile,
		Output:    os.Stdout,
	})
	stop()
	os.Exit(exitCode)
}
