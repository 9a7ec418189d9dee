package report

import (
	"errors"
	"fmt"
	"time"

	"github.com/TobiSchelling/dailyreport/internal/dataset"
)

var (
	ErrEmptyTable         = errors.New("global table is empty")
	ErrMissingPreviousDay = errors.New("missing previous day")
	ErrDivisionByZero     = errors.New("division by zero")
)

// MissingPreviousDayError means the table has no row for the day before its
// latest date.
type MissingPreviousDayError struct {
	Current  time.Time
	Previous time.Time
}

func (e *MissingPreviousDayError) Error() string {
	return fmt.Sprintf("no data for %s, the day before %s",
		e.Previous.Format(dataset.DateLayout), e.Current.Format(dataset.DateLayout))
}

func (e *MissingPreviousDayError) Unwrap() error { return ErrMissingPreviousDay }

// DivisionByZeroError means a KPI was zero on the previous day, so its
// percentage change is undefined.
type DivisionByZeroError struct {
	KPI  string
	Date time.Time
}

func (e *DivisionByZeroError) Error() string {
	return fmt.Sprintf("%s was 0 on %s, cannot compute change", e.KPI, e.Date.Format(dataset.DateLayout))
}

func (e *DivisionByZeroError) Unwrap() error { return ErrDivisionByZero }
