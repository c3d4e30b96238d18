package workflow

import (
	"context"
	"time"

	"github.com/temirov/queuesend/internal/broker"
	"github.com/temirov/queuesend/internal/progress"
	"github.com/temirov/queuesend/internal/types"
)

const (
	startConnectionOperation   = "start connection"
	createTextMessageOperation = "create text message"
	createSenderOperation      = "create sender"
	sendMessageOperation       = "send message"
	closeSenderOperation       = "close sender"
	stopConnectionOperation    = "stop connection"

	startingConnectionMessage = "--> starting the connection..."
	sendingMessageFormat      = "--> sending a text message to '%s'..."
	messageBodyFormat         = "--> message: '%s'"
	stoppingConnectionMessage = "--> stopping the connection..."
)

// dispatch starts the connection, sends one text message and stops the
// connection. The sender lives only for the duration of the send.
func (runner *Runner) dispatch(ctx context.Context, timeout time.Duration, chain *resourceChain, payload string) error {
	runner.report(progress.LevelDebug, startingConnectionMessage)
	if startErr := callErr(ctx, timeout, chain.connection.Start); startErr != nil {
		return &types.BrokerError{Operation: startConnectionOperation, Err: startErr}
	}

	runner.report(progress.LevelDebug, sendingMessageFormat, chain.destination.Address())
	message, messageErr := chain.session.CreateTextMessage(payload)
	if messageErr != nil {
		return &types.BrokerError{Operation: createTextMessageOperation, Err: messageErr}
	}
	if sendErr := runner.send(ctx, timeout, chain, message); sendErr != nil {
		return sendErr
	}

	runner.report(progress.LevelDebug, stoppingConnectionMessage)
	if stopErr := callErr(ctx, timeout, chain.connection.Stop); stopErr != nil {
		return &types.BrokerError{Operation: stopConnectionOperation, Err: stopErr}
	}
	return nil
}

func (runner *Runner) send(ctx context.Context, timeout time.Duration, chain *resourceChain, message broker.TextMessage) (sendErr error) {
	sender, senderErr := call(ctx, timeout, func(callCtx context.Context) (broker.Sender, error) {
		return chain.session.CreateSender(callCtx, chain.destination)
	})
	if senderErr != nil {
		return &types.BrokerError{Operation: createSenderOperation, Err: senderErr}
	}
	defer func() {
		closeErr := callErr(context.WithoutCancel(ctx), timeout, sender.Close)
		if closeErr != nil && sendErr == nil {
			sendErr = &types.BrokerError{Operation: closeSenderOperation, Err: closeErr}
		}
	}()

	runner.report(progress.LevelDebug, messageBodyFormat, message.Text())
	if deliveryErr := callErr(ctx, timeout, func(callCtx context.Context) error {
		return sender.Send(callCtx, message)
	}); deliveryErr != nil {
		return &types.BrokerError{Operation: sendMessageOperation, Err: deliveryErr}
	}
	return nil
}
