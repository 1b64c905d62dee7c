package reporting

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/xkilldash9x/bulwark/internal/retry"
)

// HTMLReporter renders a single-page report. It writes index.html, which is
// always the latest run, plus a timestamped copy so history is kept.
type HTMLReporter struct {
	dir         string
	toolVersion string
	now         func() time.Time

	mu      sync.Mutex
	results []*Result
}

// NewHTMLReporter creates a reporter writing into dir on Close.
func NewHTMLReporter(dir, toolVersion string) *HTMLReporter {
	return &HTMLReporter{dir: dir, toolVersion: toolVersion, now: time.Now}
}

func (r *HTMLReporter) Write(result *Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
	return nil
}

type htmlRow struct {
	Scenario   string
	Unit       string
	Attempt    int
	Outcome    string
	Message    string
	Stack      string
	Screenshot string
	Duration   string
}

type htmlPage struct {
	Version   string
	Generated string
	Passed    int
	Flaky     int
	Failed    int
	Rows      []htmlRow
}

func (r *HTMLReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	page := htmlPage{Version: r.toolVersion, Generated: now.Format(time.RFC1123)}

	results := append([]*Result(nil), r.results...)
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Scenario != results[j].Scenario {
			return results[i].Scenario < results[j].Scenario
		}
		return results[i].Attempt < results[j].Attempt
	})
	for _, res := range results {
		switch res.Outcome {
		case retry.OutcomePass:
			page.Passed++
		case retry.OutcomeFlake:
			page.Flaky++
		default:
			page.Failed++
		}
		shot := ""
		if res.Screenshot != "" {
			if rel, err := filepath.Rel(r.dir, res.Screenshot); err == nil {
				shot = filepath.ToSlash(rel)
			} else {
				shot = res.Screenshot
			}
		}
		page.Rows = append(page.Rows, htmlRow{
			Scenario:   res.Scenario,
			Unit:       res.Unit,
			Attempt:    res.Attempt,
			Outcome:    res.Outcome.String(),
			Message:    res.Message,
			Stack:      res.Stack,
			Screenshot: shot,
			Duration:   res.Duration.Round(time.Millisecond).String(),
		})
	}

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, page); err != nil {
		return fmt.Errorf("failed to render html report: %w", err)
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create report directory %s: %w", r.dir, err)
	}
	latest := filepath.Join(r.dir, "index.html")
	if err := os.WriteFile(latest, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", latest, err)
	}
	archived := filepath.Join(r.dir, fmt.Sprintf("report_%s.html", now.Format("20060102_150405")))
	if err := os.WriteFile(archived, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", archived, err)
	}
	return nil
}

var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Bulwark Automation Report</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif; margin: 2rem; color: #1f2933; }
table { border-collapse: collapse; width: 100%; }
th, td { text-align: left; padding: .4rem .6rem; border-bottom: 1px solid #e4e7eb; vertical-align: top; }
.pass { color: #207227; } .flake { color: #b7791f; } .fail { color: #c53030; }
pre { white-space: pre-wrap; font-size: .8rem; margin: .3rem 0 0; }
</style>
</head>
<body>
<h1>Bulwark Automation Report</h1>
<p>Version {{.Version}}, generated {{.Generated}}</p>
<p><span class="pass">{{.Passed}} passed</span> · <span class="flake">{{.Flaky}} flaky attempts</span> · <span class="fail">{{.Failed}} failed</span></p>
<table>
<thead><tr><th>Scenario</th><th>Unit</th><th>Attempt</th><th>Outcome</th><th>Duration</th><th>Details</th></tr></thead>
<tbody>
{{range .Rows}}<tr>
<td>{{.Scenario}}</td><td>{{.Unit}}</td><td>{{.Attempt}}</td><td class="{{.Outcome}}">{{.Outcome}}</td><td>{{.Duration}}</td>
<td>{{.Message}}{{if .Screenshot}}<br><a href="{{.Screenshot}}">screenshot</a>{{end}}{{if .Stack}}<pre>{{.Stack}}</pre>{{end}}</td>
</tr>
{{end}}</tbody>
</table>
</body>
</html>
`))
