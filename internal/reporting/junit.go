package reporting

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/beevik/etree"

	"github.com/xkilldash9x/bulwark/internal/retry"
)

// JUnitReporter renders results as JUnit XML. Retried attempts that were
// followed by a pass become <flakyFailure> entries and retried attempts
// preceding a hard failure become <rerunFailure> entries, the convention CI
// servers use to tell flakes from regressions.
type JUnitReporter struct {
	writer      io.WriteCloser
	toolVersion string
	now         func() time.Time

	mu        sync.Mutex
	scenarios map[string][]*Result
	order     []string
}

// NewJUnitReporter creates a reporter that writes the document on Close.
func NewJUnitReporter(writer io.WriteCloser, toolVersion string) *JUnitReporter {
	return &JUnitReporter{
		writer:      writer,
		toolVersion: toolVersion,
		now:         time.Now,
		scenarios:   make(map[string][]*Result),
	}
}

func (r *JUnitReporter) Write(result *Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, seen := r.scenarios[result.Scenario]; !seen {
		r.order = append(r.order, result.Scenario)
	}
	r.scenarios[result.Scenario] = append(r.scenarios[result.Scenario], result)
	return nil
}

func (r *JUnitReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc := r.document()
	doc.Indent(2)
	_, err := doc.WriteTo(r.writer)
	if cerr := r.writer.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write junit report: %w", err)
	}
	return nil
}

func (r *JUnitReporter) document() *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	suites := doc.CreateElement("testsuites")
	suite := suites.CreateElement("testsuite")
	suite.CreateAttr("name", "bulwark")
	suite.CreateAttr("timestamp", r.now().UTC().Format(time.RFC3339))
	props := suite.CreateElement("properties")
	prop := props.CreateElement("property")
	prop.CreateAttr("name", "version")
	prop.CreateAttr("value", r.toolVersion)

	names := append([]string(nil), r.order...)
	sort.Strings(names)

	var tests, failures, flaky int
	var total time.Duration
	for _, name := range names {
		attempts := r.scenarios[name]
		tests++

		tc := suite.CreateElement("testcase")
		tc.CreateAttr("name", name)
		tc.CreateAttr("classname", "bulwark."+name)

		var elapsed time.Duration
		for _, a := range attempts {
			elapsed += a.Duration
		}
		total += elapsed
		tc.CreateAttr("time", seconds(elapsed))

		final := attempts[len(attempts)-1]
		rerunTag := "flakyFailure"
		if final.Outcome == retry.OutcomeFailure {
			rerunTag = "rerunFailure"
			failures++
			f := tc.CreateElement("failure")
			f.CreateAttr("message", firstLine(final.Message))
			f.CreateAttr("type", "failure")
			f.SetText(final.Message + stackSuffix(final.Stack))
			if final.Screenshot != "" {
				out := tc.CreateElement("system-out")
				out.SetText("[[ATTACHMENT|" + final.Screenshot + "]]")
			}
		}
		for _, a := range attempts {
			if a.Outcome != retry.OutcomeFlake {
				continue
			}
			if final.Outcome == retry.OutcomePass {
				flaky++
			}
			e := tc.CreateElement(rerunTag)
			e.CreateAttr("message", firstLine(a.Message))
			e.CreateAttr("type", "flake")
			e.CreateAttr("time", seconds(a.Duration))
			e.SetText(a.Message)
		}
	}

	suite.CreateAttr("tests", fmt.Sprint(tests))
	suite.CreateAttr("failures", fmt.Sprint(failures))
	suite.CreateAttr("errors", "0")
	suite.CreateAttr("flakes", fmt.Sprint(flaky))
	suite.CreateAttr("time", seconds(total))
	suites.CreateAttr("tests", fmt.Sprint(tests))
	suites.CreateAttr("failures", fmt.Sprint(failures))
	return doc
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}

func stackSuffix(stack string) string {
	if stack == "" {
		return ""
	}
	return "\n\n" + stack
}
