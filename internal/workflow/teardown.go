package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/temirov/queuesend/internal/progress"
	"github.com/temirov/queuesend/internal/types"
)

const (
	closingResourcesMessage = "--> closing the resources..."
	closingResourceFormat   = "   closing %s..."
	closePanicFormat        = "close panicked: %v"
	closeReportSeparator    = "; "
)

// CloseReport collects teardown failures in the order they occurred.
type CloseReport struct {
	failures []*types.CloseError
}

func (report *CloseReport) add(resource string, err error) {
	report.failures = append(report.failures, &types.CloseError{Resource: resource, Err: err})
}

// Empty reports whether every close succeeded.
func (report CloseReport) Empty() bool {
	return len(report.failures) == 0
}

// Failures returns the collected close errors.
func (report CloseReport) Failures() []*types.CloseError {
	return report.failures
}

// Err combines the failures into one error, or nil when there are none.
func (report CloseReport) Err() error {
	var combined error
	for _, failure := range report.failures {
		combined = multierr.Append(combined, failure)
	}
	return combined
}

func (report CloseReport) String() string {
	messages := make([]string, 0, len(report.failures))
	for _, failure := range multierr.Errors(report.Err()) {
		messages = append(messages, failure.Error())
	}
	return strings.Join(messages, closeReportSeparator)
}

// teardown closes every acquired resource exactly once in reverse order of
// acquisition. It runs after cancellation too, so it detaches from ctx and
// bounds each close with the call timeout instead.
func (runner *Runner) teardown(ctx context.Context, timeout time.Duration, chain *resourceChain) CloseReport {
	var report CloseReport
	if len(chain.acquired) == 0 {
		return report
	}
	runner.report(progress.LevelDebug, closingResourcesMessage)
	closeCtx := context.WithoutCancel(ctx)
	for index := len(chain.acquired) - 1; index >= 0; index-- {
		resource := chain.acquired[index]
		runner.report(progress.LevelDebug, closingResourceFormat, resource.kind)
		if closeErr := closeIsolated(closeCtx, timeout, resource); closeErr != nil {
			report.add(resource.kind, closeErr)
		}
	}
	chain.acquired = nil
	return report
}

func closeIsolated(ctx context.Context, timeout time.Duration, resource closeable) (closeErr error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			closeErr = fmt.Errorf(closePanicFormat, recovered)
		}
	}()
	return callErr(ctx, timeout, resource.resource.Close)
}
