package helper

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spance/a11ycheck/checker/definitions"
)

var statusIcons = map[definitions.StepStatus]string{
	definitions.StepPassed:  "✅",
	definitions.StepFailed:  "❌",
	definitions.StepWarned:  "⚠️",
	definitions.StepSkipped: "⏭️",
}

// PrintReport writes the step table, endpoint results and the overall verdict.
func PrintReport(w io.Writer, report *definitions.Report) {
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "Run %s", report.RunID)
	if report.DeviceID != "" {
		fmt.Fprintf(w, " on %s", report.DeviceID)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("-", 60))

	for _, s := range report.Steps {
		line := fmt.Sprintf("%s %-26s %-8s %8s", statusIcons[s.Status], s.Name, s.Status, s.Duration.Round(time.Millisecond))
		if s.Detail != "" {
			line += "  " + s.Detail
		}
		fmt.Fprintln(w, line)
		if s.Err != nil {
			fmt.Fprintf(w, "    error: %v\n", s.Err)
		}
	}

	if len(report.Endpoints) > 0 {
		fmt.Fprintln(w, strings.Repeat("-", 60))
		for _, e := range report.Endpoints {
			switch {
			case e.Err != nil:
				fmt.Fprintf(w, "❌ %-8s %v\n", e.Endpoint, e.Err)
			case e.Updated:
				fmt.Fprintf(w, "📝 %-8s reference updated (%d change(s))\n", e.Endpoint, e.Changes)
			case e.SidePath != "":
				fmt.Fprintf(w, "📄 %-8s serialized to %s\n", e.Endpoint, e.SidePath)
			case e.Changes > 0:
				fmt.Fprintf(w, "❌ %-8s %d change(s)\n", e.Endpoint, e.Changes)
			default:
				fmt.Fprintf(w, "✅ %-8s matches snapshot\n", e.Endpoint)
			}
		}
	}

	fmt.Fprintln(w, strings.Repeat("=", 60))
	if report.Passed() {
		fmt.Fprintln(w, "✅ PASSED")
	} else {
		fmt.Fprintf(w, "❌ FAILED (%d failed step(s))\n", len(report.Failed()))
	}
}
