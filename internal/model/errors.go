package model

// InvalidConfigError reports a malformed RunConfig. Raised before any trial
// runs; a run that fails with it persisted nothing.
type InvalidConfigError struct {
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return "invalid run config: " + e.Reason
}
