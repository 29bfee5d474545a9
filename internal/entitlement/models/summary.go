package models

import (
	"time"

	id "verigate/pkg/domain"
)

// TypeSummary aggregates a user's spendable quota for one verification type.
// An Order eligible for several types counts toward each of them, so
// summaries for different types may share units.
type TypeSummary struct {
	Type          id.VerificationType
	Remaining     int
	Orders        int
	SoonestExpiry time.Time
}

// Summarize groups usable orders by eligible type, in first-seen type order.
func Summarize(orders []*Order, now time.Time) []TypeSummary {
	index := make(map[id.VerificationType]int)
	var out []TypeSummary
	for _, o := range orders {
		if !o.CanDebit(now) {
			continue
		}
		for _, t := range o.Quota.EligibleTypes {
			i, ok := index[t]
			if !ok {
				i = len(out)
				index[t] = i
				out = append(out, TypeSummary{Type: t, SoonestExpiry: o.Quota.ExpiresAt})
			}
			out[i].Remaining += o.Quota.Remaining
			out[i].Orders++
			if o.Quota.ExpiresAt.Before(out[i].SoonestExpiry) {
				out[i].SoonestExpiry = o.Quota.ExpiresAt
			}
		}
	}
	return out
}
