package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"
)

var (
	prefixStyle  = color.New(color.FgHiCyan, color.Bold)
	deleteStyle  = color.New(color.FgHiRed)
	dryRunStyle  = color.New(color.FgHiYellow)
	successStyle = color.New(color.FgHiGreen, color.Bold)
	infoStyle    = color.New(color.FgHiWhite)
	subtleStyle  = color.New(color.FgHiBlack)
	warnStyle    = color.New(color.FgHiMagenta, color.Bold)
	errorStyle   = color.New(color.FgHiRed, color.Bold)
)

// ExitError is returned by commands that need a specific process exit code.
type ExitError interface {
	error
	ExitCode() int
}

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit code %d", e.code)
}

func (e *exitError) Unwrap() error {
	return e.err
}

func (e *exitError) ExitCode() int {
	return e.code
}

func newExitError(code int, err error) ExitError {
	if code == 0 {
		code = 1
	}
	return &exitError{code: code, err: err}
}

// exitConfig is the exit code for unusable configuration or arguments.
const exitConfig = 2

// configureColor turns colour off unless out is a terminal.
func configureColor(out io.Writer) {
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		color.NoColor = true
	}
}

func prefix() string {
	return prefixStyle.Sprint("[tmpsweep]")
}

func logInfo(out io.Writer, message string) {
	fmt.Fprintf(out, "%s %s\n", prefix(), infoStyle.Sprint(message))
}

func logSuccess(out io.Writer, message string) {
	fmt.Fprintf(out, "%s %s\n", prefix(), successStyle.Sprint(message))
}

func logWarning(errOut io.Writer, message string) {
	fmt.Fprintf(errOut, "%s %s %s\n", prefix(), warnStyle.Sprint("WARN"), infoStyle.Sprint(message))
}

func logError(errOut io.Writer, message string) {
	fmt.Fprintf(errOut, "%s %s %s\n", prefix(), errorStyle.Sprint("ERROR"), infoStyle.Sprint(message))
}
