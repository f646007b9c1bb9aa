package analysis

import "context"

// Stage is one analysis step. Implementations mutate the record in place
// and return an error only for infrastructure failures; domain outcomes
// (a rejected plan, missing facts) are recorded on the record itself.
type Stage interface {
	// Name identifies the stage for logging and tracing.
	Name() string

	// Run executes the stage against the record.
	Run(ctx context.Context, rec *Record) error
}
