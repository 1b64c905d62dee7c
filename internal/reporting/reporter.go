// -- internal/reporting/reporter.go --
package reporting

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xkilldash9x/bulwark/internal/retry"
)

// Result is one attempt of one scenario. A scenario that is retried produces
// several results with increasing Attempt numbers.
type Result struct {
	RunID    string
	Scenario string
	Unit     string
	// Attempt is 1-based.
	Attempt int
	Outcome retry.Outcome
	Message string
	Stack   string
	// Screenshot is the artifact path attached to a hard failure.
	Screenshot string
	Started    time.Time
	Duration   time.Duration
}

// Reporter defines the interface for writing scenario results to an output.
type Reporter interface {
	// Write processes a single result.
	Write(result *Result) error
	// Close finalizes the report and closes any underlying resources (e.g., file handles).
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a new reporter based on the specified format and output path.
// For "html" the path is a directory; for the other formats it is a file, and
// an empty path or "stdout" writes to standard output.
func New(format, outputPath, toolVersion string) (Reporter, error) {
	if format == "html" {
		if outputPath == "" || outputPath == "stdout" {
			return nil, fmt.Errorf("html reporter needs an output directory")
		}
		return NewHTMLReporter(outputPath, toolVersion), nil
	}

	var writer io.WriteCloser
	isStdOut := outputPath == "" || outputPath == "stdout"

	if isStdOut {
		// Wrap Stdout so Close() is a no-op.
		writer = &nopWriteCloser{os.Stdout}
	} else {
		if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create report directory for %s: %w", outputPath, err)
		}
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}

	switch format {
	case "junit":
		return NewJUnitReporter(writer, toolVersion), nil
	case "console":
		return NewConsoleReporter(writer), nil
	default:
		if !isStdOut {
			writer.Close()
		}
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// DefaultPath returns where format is written inside reportDir.
func DefaultPath(format, reportDir string) string {
	switch format {
	case "junit":
		return filepath.Join(reportDir, "junit.xml")
	case "html":
		return reportDir
	default:
		return "stdout"
	}
}

// Multi fans every result out to several reporters.
type Multi []Reporter

// Write forwards result to every reporter and joins their errors.
func (m Multi) Write(result *Result) error {
	var errs []error
	for _, r := range m {
		if err := r.Write(result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every reporter, even when some fail.
func (m Multi) Close() error {
	var errs []error
	for _, r := range m {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// firstLine trims a failure message to its first line for compact output.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
