package definitions

import (
	"time"

	"github.com/samber/lo"
)

type StepStatus string

const (
	StepPassed  StepStatus = "passed"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
	// StepWarned is a failed step the run tolerates; it does not fail the report.
	StepWarned StepStatus = "warned"
)

// StepResult is the tagged outcome of one orchestrator step.
type StepResult struct {
	Name     string        `json:"name"`
	Status   StepStatus    `json:"status"`
	Detail   string        `json:"detail,omitempty"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// EndpointResult is the outcome of checking one service endpoint against its snapshot.
type EndpointResult struct {
	Endpoint string `json:"endpoint"`
	URL      string `json:"url"`
	Mode     string `json:"mode"`
	Changes  int    `json:"changes"`
	Rendered string `json:"rendered,omitempty"`
	Updated  bool   `json:"updated,omitempty"`
	SidePath string `json:"side_path,omitempty"`
	Err      error  `json:"-"`
}

// Matched reports whether the endpoint answered and showed no drift, or the drift was
// accepted as the new reference.
func (r EndpointResult) Matched() bool {
	return r.Err == nil && (r.Changes == 0 || r.Updated)
}

type Report struct {
	RunID     string           `json:"run_id"`
	DeviceID  string           `json:"device_id,omitempty"`
	HostPort  int              `json:"host_port,omitempty"`
	Steps     []StepResult     `json:"steps"`
	Endpoints []EndpointResult `json:"endpoints"`
}

func (r *Report) Add(step StepResult) {
	r.Steps = append(r.Steps, step)
}

func (r *Report) Failed() []StepResult {
	return lo.Filter(r.Steps, func(s StepResult, _ int) bool {
		return s.Status == StepFailed
	})
}

// Passed is true only when no step failed and every checked endpoint matched its snapshot.
// A run that never reached verification does not pass.
func (r *Report) Passed() bool {
	if len(r.Failed()) > 0 || len(r.Endpoints) == 0 {
		return false
	}
	return lo.EveryBy(r.Endpoints, func(e EndpointResult) bool {
		return e.Matched()
	})
}
