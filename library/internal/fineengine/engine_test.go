package fineengine_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Astemirdum/library-system/library/internal/fineengine"
)

func TestOverdueFine(t *testing.T) {
	t.Parallel()
	due := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rate := decimal.NewFromFloat(2.0)
	maxFine := decimal.NewFromInt(50)

	var tests = []struct {
		name  string
		at    time.Time
		grace int
		max   *decimal.Decimal
		want  decimal.Decimal
	}{
		{
			name:  "within grace",
			at:    due.AddDate(0, 0, 2),
			grace: 3,
			want:  decimal.Zero,
		},
		{
			name:  "exactly at grace boundary",
			at:    due.AddDate(0, 0, 3),
			grace: 3,
			want:  decimal.Zero,
		},
		{
			name:  "two chargeable days",
			at:    due.AddDate(0, 0, 5),
			grace: 3,
			want:  decimal.NewFromFloat(4.0),
		},
		{
			name:  "clamped to max",
			at:    due.AddDate(0, 0, 100),
			grace: 3,
			max:   &maxFine,
			want:  decimal.NewFromInt(50),
		},
		{
			name:  "returned early",
			at:    due.AddDate(0, 0, -1),
			grace: 0,
			want:  decimal.Zero,
		},
		{
			name:  "partial day rounds up",
			at:    due.Add(25 * time.Hour),
			grace: 0,
			want:  decimal.NewFromFloat(4.0), // ceil(25h/24h) = 2 days
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := fineengine.OverdueFine(due, tt.at, tt.grace, rate, tt.max)
			require.True(t, tt.want.Equal(got), "want %s got %s", tt.want, got)
		})
	}
}

func TestOverdueFine_MissingDueDate(t *testing.T) {
	t.Parallel()
	got := fineengine.OverdueFine(time.Time{}, time.Now(), 0, decimal.NewFromInt(5), nil)
	require.True(t, got.IsZero())
}

func TestOverdueFine_ZeroRule(t *testing.T) {
	t.Parallel()
	// all-zero rule: no fine even far past due
	due := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	got := fineengine.OverdueFine(due, due.AddDate(0, 0, 365), 0, decimal.Zero, nil)
	require.True(t, got.IsZero())
}

func TestLostFee(t *testing.T) {
	t.Parallel()
	got := fineengine.LostFee(decimal.NewFromInt(20), decimal.NewFromInt(10))
	require.True(t, decimal.NewFromInt(30).Equal(got))
}
