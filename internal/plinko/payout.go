package plinko

import (
	"fmt"
	"math"
	"sort"

	"github.com/fystack/plinko-engine/pkg/common/constant"
	"github.com/fystack/plinko-engine/pkg/common/enum"
	"github.com/fystack/plinko-engine/pkg/common/types"
	"github.com/fystack/plinko-engine/pkg/common/utils"
	"github.com/samber/lo"
)

// RTP converts a house edge in percent to the target return to player.
func RTP(edge float64) float64 {
	return 1 - edge/100
}

func ValidateEdge(edge float64) error {
	if math.IsNaN(edge) || edge < 0 || edge >= 100 {
		return types.Validation("plinko.ValidateEdge", "edge %v outside [0,100)", edge)
	}
	return nil
}

// PayoutList builds the standard table for rows and risk at the given edge.
func PayoutList(rows int, risk enum.Risk, edge float64) ([]float64, error) {
	const op = "plinko.PayoutList"
	if err := ValidateEdge(edge); err != nil {
		return nil, err
	}
	curve, ok := Curve(rows, risk)
	if !ok {
		return nil, types.Validation(op, "no payout curve for %d rows at %q risk", rows, risk)
	}
	probs := HoleProbabilities(rows)
	return RoundPreserving(Scale(curve, probs, RTP(edge)), nil, probs, nil), nil
}

// Scale multiplies table so its expected value under probs equals rtp.
func Scale(table, probs []float64, rtp float64) []float64 {
	ev := utils.Dot(table, probs)
	k := rtp / ev
	return lo.Map(table, func(v float64, _ int) float64 { return v * k })
}

// ExpectedValue is the sum of table[i]*adj[i]*probs[i]; a nil adj counts as all ones.
func ExpectedValue(table, adj, probs []float64) float64 {
	var ev float64
	for i := range table {
		a := 1.0
		if adj != nil {
			a = adj[i]
		}
		ev += table[i] * a * probs[i]
	}
	return ev
}

// RoundPreserving rounds every non-excluded hole to cents while keeping the
// expected value unchanged. Holes are finalized from least to most likely;
// each rounding residual is pushed into the still-open holes in proportion to
// their probability, and the most likely hole absorbs the remainder unrounded.
func RoundPreserving(x, adj, probs []float64, excluded map[int]bool) []float64 {
	out := append([]float64(nil), x...)
	weight := func(i int) float64 {
		if adj == nil {
			return 1
		}
		return adj[i]
	}

	order := lo.Filter(lo.Range(len(out)), func(i int, _ int) bool { return !excluded[i] })
	sort.SliceStable(order, func(a, b int) bool {
		ia, ib := order[a], order[b]
		if probs[ia] != probs[ib] {
			return probs[ia] < probs[ib]
		}
		return ia < ib
	})

	for k, i := range order {
		rest := order[k+1:]
		if len(rest) == 0 {
			break
		}
		rounded := utils.RoundCents(out[i])
		resid := (out[i] - rounded) * weight(i) * probs[i]
		out[i] = rounded

		var restMass float64
		for _, j := range rest {
			restMass += probs[j]
		}
		for _, j := range rest {
			out[j] += resid * (probs[j] / restMass) / (weight(j) * probs[j])
		}
	}
	return out
}

// VerifyPayoutAverage checks a table against the target return for edge.
func VerifyPayoutAverage(table, probs []float64, edge float64) (bool, string) {
	if len(table) != len(probs) {
		return false, fmt.Sprintf("table has %d holes, probabilities have %d", len(table), len(probs))
	}
	for i, v := range table {
		if !utils.IsFinite(v) || v < 0 {
			return false, fmt.Sprintf("hole %d has invalid payout %v", i, v)
		}
	}
	ev := utils.Dot(table, probs)
	target := RTP(edge)
	diff := math.Abs(ev - target)
	if diff > constant.RTPTolerance {
		return false, fmt.Sprintf("expected value %.6f off target %.6f by %.6f", ev, target, diff)
	}
	return true, fmt.Sprintf("expected value %.6f within %.3f of target %.6f", ev, constant.RTPTolerance, target)
}
