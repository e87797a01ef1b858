package search

import "fmt"

// NoViableResultError reports a search that completed with zero successful
// trials. No RunRecord is persisted for such a run: an undefined "best"
// must not end up in the history.
type NoViableResultError struct {
	SearchKind string
	Trials     int
}

func (e *NoViableResultError) Error() string {
	return fmt.Sprintf("%s search produced no viable result (%d trials, all failed)", e.SearchKind, e.Trials)
}
