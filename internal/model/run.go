package model

import "time"

// RunStatus represents the state of an analysis run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run records one execution of the analysis pipeline.
type Run struct {
	ID            string     `json:"id"`
	Status        RunStatus  `json:"status"`
	DumpDir       string     `json:"dump_dir"`
	TopTags       int        `json:"top_tags"`
	MinReputation int        `json:"min_reputation"`
	Users         int        `json:"users"`
	Answers       int        `json:"answers"`
	Malformed     int        `json:"malformed"`
	Error         string     `json:"error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// CoefficientRow is one fitted coefficient as persisted by the store and
// rendered in the final table.
type CoefficientRow struct {
	Shape     Shape   `json:"shape"`
	Feature   string  `json:"feature"`
	Value     float64 `json:"value"`
	StdErr    float64 `json:"std_err"`
	P         float64 `json:"p"`
	Stars     string  `json:"stars"`
	Converged bool    `json:"converged"`
}
