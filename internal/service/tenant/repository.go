package tenant

import (
	"context"
	"time"

	"github.com/ignite/tenant-domains/internal/provisioning"
)

// Operation is the kind of run recorded in the journal.
type Operation string

const (
	OperationProvision   Operation = "provision"
	OperationDeprovision Operation = "deprovision"
)

// Run is one journaled orchestrator run. OverallSuccess is nil for
// deprovisioning, which has no overall gate.
type Run struct {
	ID             string                     `json:"id"`
	Handle         string                     `json:"handle"`
	Operation      Operation                  `json:"operation"`
	OverallSuccess *bool                      `json:"overall_success,omitempty"`
	Steps          []provisioning.StepOutcome `json:"steps"`
	StartedAt      time.Time                  `json:"started_at"`
	FinishedAt     time.Time                  `json:"finished_at"`
}

// Repository defines the data access contract for the run journal.
type Repository interface {
	// Record appends a run. An empty ID is assigned by the repository.
	Record(ctx context.Context, run *Run) error

	// ListByHandle returns the newest runs for a handle first.
	ListByHandle(ctx context.Context, handle string, limit int) ([]Run, error)
}
