// Package plan defines implementation plans (ordered, reversibility-aware
// steps) and the executor that applies them against a target project with
// strict ordering, rollback on reversible failure, and partial-failure
// reporting on irreversible failure.
package plan
