package domain

import (
	"fmt"
	"time"
)

// ConfigError reports a missing or invalid configuration value. It is fatal:
// a run never starts with a bad configuration.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Msg)
}

// DataError reports a bar that could not be acted upon. The bar's action is
// skipped and the run continues.
type DataError struct {
	Symbol string
	Time   time.Time
	Msg    string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("data %s at %s: %s", e.Symbol, e.Time.Format("2006-01-02 15:04:05"), e.Msg)
}

// StateInvariantViolation reports simulator bookkeeping that should be
// impossible, such as negative free cash or a lot closed twice.
type StateInvariantViolation struct {
	Symbol string
	Time   time.Time
	Msg    string
}

func (e *StateInvariantViolation) Error() string {
	return fmt.Sprintf("invariant violated for %s at %s: %s", e.Symbol, e.Time.Format("2006-01-02 15:04:05"), e.Msg)
}
