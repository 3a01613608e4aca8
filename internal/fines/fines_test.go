package fines

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeFine(t *testing.T) {
	t.Parallel()

	due := time.Date(2024, time.March, 14, 9, 0, 0, 0, time.UTC)
	policy := DefaultPolicy()

	tests := []struct {
		name       string
		settlement time.Time
		want       int64
	}{
		{name: "well before due date", settlement: due.Add(-72 * time.Hour), want: 0},
		{name: "exactly on due date", settlement: due, want: 0},
		{name: "one second late counts as a day", settlement: due.Add(time.Second), want: 10},
		{name: "one full day late", settlement: due.Add(24 * time.Hour), want: 10},
		{name: "one day and one minute late", settlement: due.Add(24*time.Hour + time.Minute), want: 20},
		{name: "three days late", settlement: due.Add(72 * time.Hour), want: 30},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := policy.ComputeFine(due, tc.settlement)
			assert.True(t, got.Equal(decimal.NewFromInt(tc.want)), "expected %d, got %s", tc.want, got)
		})
	}
}

func TestComputeFine_CustomRate(t *testing.T) {
	t.Parallel()

	due := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	policy := Policy{UnitRate: decimal.RequireFromString("2.50"), LoanPeriod: 14 * 24 * time.Hour}

	got := policy.ComputeFine(due, due.Add(49*time.Hour))
	assert.Equal(t, "7.5", got.String())
	assert.Equal(t, due.Add(14*24*time.Hour), policy.DueDate(due))
}

func TestComputeFine_PackageDefault(t *testing.T) {
	t.Parallel()

	due := time.Date(2022, time.February, 17, 12, 0, 0, 0, time.UTC)
	require.True(t, ComputeFine(due, due.Add(24*time.Hour)).Equal(DefaultPolicy().UnitRate))
	require.True(t, ComputeFine(due, due).IsZero())
}

func TestDueDate_FallsBackToDefaultPeriod(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, time.May, 1, 8, 30, 0, 0, time.UTC)
	assert.Equal(t, start.Add(7*24*time.Hour), Policy{}.DueDate(start))
}

func TestDaysOverdue(t *testing.T) {
	t.Parallel()

	due := time.Date(2024, time.June, 10, 0, 0, 0, 0, time.UTC)
	assert.Zero(t, DaysOverdue(due, due.Add(-time.Hour)))
	assert.EqualValues(t, 1, DaysOverdue(due, due.Add(time.Hour)))
	assert.EqualValues(t, 3, DaysOverdue(due, due.Add(72*time.Hour)))
}
