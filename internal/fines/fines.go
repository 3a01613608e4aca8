// Package fines computes loan periods and overdue penalties for borrowings.
package fines

import (
	"time"

	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

// Policy captures the circulation parameters that drive due dates and fines.
type Policy struct {
	// UnitRate is the fine charged for each started day past the due date.
	UnitRate decimal.Decimal
	// LoanPeriod is added to the borrow date to obtain the due date.
	LoanPeriod time.Duration
}

// DefaultPolicy returns the standard policy: a seven day loan and 10 units per late day.
func DefaultPolicy() Policy {
	return Policy{
		UnitRate:   decimal.NewFromInt(10),
		LoanPeriod: 7 * day,
	}
}

// DueDate returns the due date for a borrowing started at borrowedAt.
func (p Policy) DueDate(borrowedAt time.Time) time.Time {
	period := p.LoanPeriod
	if period <= 0 {
		period = DefaultPolicy().LoanPeriod
	}
	return borrowedAt.Add(period)
}

// ComputeFine returns the fine owed when a borrowing due at due is settled at settlement.
// Settling on or before the due date costs nothing; every started day after it costs UnitRate.
func (p Policy) ComputeFine(due, settlement time.Time) decimal.Decimal {
	days := DaysOverdue(due, settlement)
	if days == 0 {
		return decimal.Zero
	}
	return p.UnitRate.Mul(decimal.NewFromInt(days))
}

// ComputeFine applies DefaultPolicy.
func ComputeFine(due, settlement time.Time) decimal.Decimal {
	return DefaultPolicy().ComputeFine(due, settlement)
}

// DaysOverdue returns the number of days between due and settlement, rounding partial days up.
// It is zero when settlement is not after due.
func DaysOverdue(due, settlement time.Time) int64 {
	if !settlement.After(due) {
		return 0
	}
	late := settlement.Sub(due)
	days := int64(late / day)
	if late%day != 0 {
		days++
	}
	return days
}
