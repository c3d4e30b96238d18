package workflow

import (
	"github.com/temirov/queuesend/internal/progress"
	"github.com/temirov/queuesend/internal/types"
)

const (
	sentSuccessfullyMessage = "message has been sent successfully"
	failureFormat           = "ERROR: %v"
	closeWarningFormat      = "WARNING: %s"
	returnCodeFormat        = "Return code: %d"
)

// ReportOutcome narrates the outcome line, an aggregated close warning when
// teardown failed, and the exit code, in that order. It returns the exit code.
func ReportOutcome(sink progress.Sink, outcome Outcome) int {
	exitCode := outcome.ExitCode()
	if outcome.Err == nil {
		sink.Report(progress.LevelInfo, sentSuccessfullyMessage)
	} else {
		progress.Reportf(sink, progress.LevelError, failureFormat, outcome.Err)
	}
	if !outcome.CloseReport.Empty() {
		progress.Reportf(sink, progress.LevelWarn, closeWarningFormat, outcome.CloseReport.String())
	}
	returnCodeLevel := progress.LevelInfo
	if exitCode != types.ExitCodeSuccess {
		returnCodeLevel = progress.LevelError
	}
	progress.Reportf(sink, returnCodeLevel, returnCodeFormat, exitCode)
	return exitCode
}
