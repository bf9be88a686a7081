package plinko

import "github.com/fystack/plinko-engine/pkg/common/enum"

// SupportedRows lists the row counts that have a canonical payout curve.
var SupportedRows = []int{8, 12, 16}

// curves are the unscaled payout shapes. Tables are produced by scaling a
// curve to the target return, so only the shape matters here. Risk levels
// differ in shape, not just scale, which is why each row count carries one
// curve per risk.
var curves = map[int]map[enum.Risk][]float64{
	8: {
		enum.RiskLow:    {5.6, 2.1, 1.1, 1, 0.5, 1, 1.1, 2.1, 5.6},
		enum.RiskMedium: {13, 3, 1.3, 0.7, 0.4, 0.7, 1.3, 3, 13},
		enum.RiskHigh:   {29, 4, 1.5, 0.3, 0.2, 0.3, 1.5, 4, 29},
	},
	12: {
		enum.RiskLow:    {10, 3, 1.6, 1.4, 1.1, 1, 0.5, 1, 1.1, 1.4, 1.6, 3, 10},
		enum.RiskMedium: {33, 11, 4, 2, 1.1, 0.6, 0.3, 0.6, 1.1, 2, 4, 11, 33},
		enum.RiskHigh:   {170, 24, 8.1, 2, 0.7, 0.2, 0.2, 0.2, 0.7, 2, 8.1, 24, 170},
	},
	16: {
		enum.RiskLow:    {16, 9, 2, 1.4, 1.4, 1.2, 1.1, 1, 0.5, 1, 1.1, 1.2, 1.4, 1.4, 2, 9, 16},
		enum.RiskMedium: {110, 41, 10, 5, 3, 1.5, 1, 0.5, 0.3, 0.5, 1, 1.5, 3, 5, 10, 41, 110},
		enum.RiskHigh:   {1000, 130, 26, 9, 4, 2, 0.2, 0.2, 0.2, 0.2, 0.2, 2, 4, 9, 26, 130, 1000},
	},
}

// Curve returns a copy of the canonical curve for rows and risk.
func Curve(rows int, risk enum.Risk) ([]float64, bool) {
	byRisk, ok := curves[rows]
	if !ok {
		return nil, false
	}
	c, ok := byRisk[risk]
	if !ok {
		return nil, false
	}
	return append([]float64(nil), c...), true
}
