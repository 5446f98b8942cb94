package index

import "fmt"

// State is the lifecycle position of a Manager within one run.
type State int

const (
	StateIdle State = iota
	StateLoaded
	StatePruning
	StateScanning
	StateRefreshing
	StatePersisted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoaded:
		return "loaded"
	case StatePruning:
		return "pruning"
	case StateScanning:
		return "scanning"
	case StateRefreshing:
		return "refreshing"
	case StatePersisted:
		return "persisted"
	default:
		return "unknown"
	}
}

// FailurePolicy decides what a failed file refresh does to the rest of the scan.
type FailurePolicy string

const (
	// SkipFile logs the failure and carries on with the next file.
	SkipFile FailurePolicy = "skip-file"
	// SkipDirectory discards the directory's results and moves to the next directory.
	SkipDirectory FailurePolicy = "skip-directory"
	// Abort persists the directory's completed work and stops the scan.
	Abort FailurePolicy = "abort"
)

// FailurePolicies lists the accepted policies.
var FailurePolicies = []FailurePolicy{SkipFile, SkipDirectory, Abort}

// Valid reports whether p is a known policy.
func (p FailurePolicy) Valid() bool {
	switch p {
	case SkipFile, SkipDirectory, Abort:
		return true
	}
	return false
}

// ParseFailurePolicy converts a configuration value to a FailurePolicy.
// The empty string selects SkipFile.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	if s == "" {
		return SkipFile, nil
	}
	p := FailurePolicy(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown failure policy %q (want one of %v)", s, FailurePolicies)
	}
	return p, nil
}
