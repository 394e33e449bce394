// Package store persists convergence history: one run per case, its
// iterations with scores, the classified defects behind each iteration,
// and the guardrails the loop accumulated. The loop itself runs off the
// case directory; the store is the queryable record behind status and
// reporting.
package store

// DefaultDBPath is the default relative path for the SQLite DB.
// Open() creates the parent directory (e.g. .visor).
const DefaultDBPath = ".visor/visor.db"

// Run is one convergence run for a case.
type Run struct {
	ID         int64
	Case       string
	Prompt     string
	Target     float64
	Status     string // running, converged, escalated
	CreatedAt  string
	FinishedAt string
}

// Iteration is one loop iteration within a run. Scores holds the
// per-pass percentages plus "overall".
type Iteration struct {
	ID        int64
	RunID     int64
	N         int
	Overall   float64
	Scores    map[string]float64
	Outcome   string
	Action    string
	CreatedAt string
}

// Defect is one classified deviation recorded for an iteration.
type Defect struct {
	ID          int64
	IterationID int64
	Pass        string
	Source      string
	Type        string
	Severity    float64
	Description string
	FixTarget   string
	FixHint     string
}

// Guardrail is one standing instruction accumulated by a run.
type Guardrail struct {
	ID          int64
	RunID       int64
	Trigger     string
	Instruction string
	Iteration   int
	CreatedAt   string
}

// Store is the persistence facade. Callers use only this interface;
// the implementation is SQLite or in-memory.
type Store interface {
	// Runs
	CreateRun(run *Run) (runID int64, err error)
	GetRun(runID int64) (*Run, error)
	GetRunByCase(caseName string) (*Run, error)
	ListRuns() ([]*Run, error)
	FinishRun(runID int64, status string) error
	// Iterations
	AddIteration(it *Iteration) (iterationID int64, err error)
	ListIterations(runID int64) ([]*Iteration, error)
	LatestIteration(runID int64) (*Iteration, error)
	// Defects
	AddDefects(iterationID int64, defects []*Defect) error
	ListDefects(iterationID int64) ([]*Defect, error)
	// Guardrails
	AddGuardrail(g *Guardrail) (guardrailID int64, err error)
	ListGuardrails(runID int64) ([]*Guardrail, error)

	Close() error
}
