package reporting

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"github.com/xkilldash9x/bulwark/internal/retry"
)

// ConsoleReporter prints one line per attempt and a summary on Close.
type ConsoleReporter struct {
	writer io.WriteCloser
	mu     sync.Mutex
	tally  map[retry.Outcome]int
	failed []string
}

// NewConsoleReporter creates a console reporter writing to writer.
func NewConsoleReporter(writer io.WriteCloser) *ConsoleReporter {
	return &ConsoleReporter{writer: writer, tally: make(map[retry.Outcome]int)}
}

func (r *ConsoleReporter) Write(result *Result) error {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tally[result.Outcome]++

	var err error
	switch result.Outcome {
	case retry.OutcomePass:
		_, err = fmt.Fprintf(r.writer, "%s %s %s\n", green("✓"), result.Scenario, gray(fmt.Sprintf("(%dms)", result.Duration.Milliseconds())))
	case retry.OutcomeFlake:
		_, err = fmt.Fprintf(r.writer, "%s %s %s: %s\n", yellow("~"), result.Scenario,
			yellow(fmt.Sprintf("flake on attempt %d, retrying", result.Attempt)), firstLine(result.Message))
	default:
		r.failed = append(r.failed, result.Scenario)
		_, err = fmt.Fprintf(r.writer, "%s %s %s: %s\n", red("✗"), result.Scenario,
			red(fmt.Sprintf("failed after %d attempt(s)", result.Attempt)), firstLine(result.Message))
		if err == nil && result.Screenshot != "" {
			_, err = fmt.Fprintf(r.writer, "    %s\n", gray("screenshot: "+result.Screenshot))
		}
	}
	return err
}

func (r *ConsoleReporter) Close() error {
	bold := color.New(color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintf(r.writer, "\n%s %s, %s, %s\n", bold("Summary:"),
		green(fmt.Sprintf("%d passed", r.tally[retry.OutcomePass])),
		yellow(fmt.Sprintf("%d flaky attempts", r.tally[retry.OutcomeFlake])),
		red(fmt.Sprintf("%d failed", r.tally[retry.OutcomeFailure])))
	for _, name := range r.failed {
		fmt.Fprintf(r.writer, "  %s %s\n", red("✗"), name)
	}
	return r.writer.Close()
}
