// Package depletion plans how a spend is drawn from expiring point buckets.
package depletion

import (
	"cmp"
	"errors"
	"slices"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInsufficient  = errors.New("insufficient_points")
	ErrInvalidAmount = errors.New("invalid_amount")
)

type Bucket struct {
	ID        snowflake.ID
	Remaining int64
	ExpireAt  time.Time
}

type Deduction struct {
	BucketID snowflake.ID
	Amount   int64
}

// Plan consumes buckets soonest-expiring first, ties broken by id ascending,
// until need is covered. It returns ErrInsufficient without a plan when the
// buckets cannot cover need.
func Plan(buckets []Bucket, need int64) ([]Deduction, error) {
	if need < 0 {
		return nil, ErrInvalidAmount
	}
	if need == 0 {
		return []Deduction{}, nil
	}

	ordered := make([]Bucket, 0, len(buckets))
	var available int64
	for _, b := range buckets {
		if b.Remaining <= 0 {
			continue
		}
		ordered = append(ordered, b)
		available += b.Remaining
	}
	if available < need {
		return nil, ErrInsufficient
	}

	slices.SortFunc(ordered, func(a, b Bucket) int {
		if c := a.ExpireAt.Compare(b.ExpireAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	plan := make([]Deduction, 0, len(ordered))
	left := need
	for _, b := range ordered {
		if left == 0 {
			break
		}
		take := min(b.Remaining, left)
		plan = append(plan, Deduction{BucketID: b.ID, Amount: take})
		left -= take
	}
	return plan, nil
}

// Total sums the amounts of a plan.
func Total(plan []Deduction) int64 {
	var total int64
	for _, d := range plan {
		total += d.Amount
	}
	return total
}
