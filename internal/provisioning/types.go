package provisioning

import (
	"strings"
	"time"
)

// Step names a single provisioning or deprovisioning action.
type Step string

const (
	StepValidate            Step = "validate"
	StepCreateDomain        Step = "create_domain"
	StepAddSPF              Step = "add_spf"
	StepAddMX               Step = "add_mx"
	StepAddDKIM             Step = "add_dkim"
	StepTriggerVerification Step = "trigger_verification"

	StepDeleteSPF    Step = "delete_spf"
	StepDeleteMX     Step = "delete_mx"
	StepDeleteDKIM   Step = "delete_dkim"
	StepDeleteDomain Step = "delete_domain"
)

// skipPrefix starts the Error of every skipped outcome.
const skipPrefix = "skipped: "

// StepOutcome is the recorded result of one step. Skipped steps have
// Success=false, Skipped=true and an Error starting with "skipped: ".
type StepOutcome struct {
	Step    Step        `json:"step"`
	Success bool        `json:"success"`
	Skipped bool        `json:"skipped,omitempty"`
	Error   string      `json:"error,omitempty"`
	Detail  interface{} `json:"detail,omitempty"`
}

func succeeded(step Step, detail interface{}) StepOutcome {
	return StepOutcome{Step: step, Success: true, Detail: detail}
}

func failed(step Step, err error) StepOutcome {
	return StepOutcome{Step: step, Error: err.Error()}
}

func skipped(step Step, reason string) StepOutcome {
	return StepOutcome{Step: step, Skipped: true, Error: skipPrefix + reason}
}

// IsSkip reports whether an error string marks a skipped step.
func IsSkip(errMsg string) bool {
	return strings.HasPrefix(errMsg, skipPrefix)
}

// ProvisioningResult is the ordered outcome of a Provision run.
type ProvisioningResult struct {
	Handle         string        `json:"handle"`
	Domain         string        `json:"domain,omitempty"`
	DomainID       string        `json:"domain_id,omitempty"`
	OverallSuccess bool          `json:"overall_success"`
	Steps          []StepOutcome `json:"steps"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at"`
}

// Outcome returns the outcome recorded for step, if any.
func (r *ProvisioningResult) Outcome(step Step) (StepOutcome, bool) {
	return findOutcome(r.Steps, step)
}

// Failed returns the outcomes that did not succeed, skips included.
func (r *ProvisioningResult) Failed() []StepOutcome {
	return failedOutcomes(r.Steps)
}

// DeprovisioningResult is the outcome of a Deprovision run. It has no
// overall gate; callers proceed with tenant deletion regardless.
type DeprovisioningResult struct {
	Handle     string        `json:"handle"`
	Domain     string        `json:"domain,omitempty"`
	Steps      []StepOutcome `json:"steps"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Outcome returns the outcome recorded for step, if any.
func (r *DeprovisioningResult) Outcome(step Step) (StepOutcome, bool) {
	return findOutcome(r.Steps, step)
}

// Failed returns the outcomes that did not succeed.
func (r *DeprovisioningResult) Failed() []StepOutcome {
	return failedOutcomes(r.Steps)
}

func findOutcome(steps []StepOutcome, step Step) (StepOutcome, bool) {
	for _, s := range steps {
		if s.Step == step {
			return s, true
		}
	}
	return StepOutcome{}, false
}

func failedOutcomes(steps []StepOutcome) []StepOutcome {
	var out []StepOutcome
	for _, s := range steps {
		if !s.Success {
			out = append(out, s)
		}
	}
	return out
}
