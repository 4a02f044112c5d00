// Package fineengine computes overdue and lost-book fees from policy
// parameters. Pure computation, no I/O.
package fineengine

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

const hoursPerDay = 24

// OverdueFine returns the fee for returning a loan at `at` against `dueDate`.
// Days late are counted with ceil, the grace boundary is inclusive of
// no-charge, and the result is clamped to maxFine when set.
func OverdueFine(dueDate, at time.Time, gracePeriodDays int, dailyRate decimal.Decimal, maxFine *decimal.Decimal) decimal.Decimal {
	if dueDate.IsZero() {
		return decimal.Zero
	}
	diffDays := int(math.Ceil(at.Sub(dueDate).Hours() / hoursPerDay))
	if diffDays <= gracePeriodDays {
		return decimal.Zero
	}
	chargeableDays := diffDays - gracePeriodDays
	fine := dailyRate.Mul(decimal.NewFromInt(int64(chargeableDays)))
	if maxFine != nil && fine.GreaterThan(*maxFine) {
		fine = *maxFine
	}
	if fine.IsNegative() {
		return decimal.Zero
	}
	return fine
}

// LostFee is the replacement charge for a lost book: price plus the
// role's processing fee, no clamping.
func LostFee(bookPrice, processingFee decimal.Decimal) decimal.Decimal {
	return bookPrice.Add(processingFee)
}
