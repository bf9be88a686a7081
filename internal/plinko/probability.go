package plinko

import "sort"

// Cell is a peg position; Row counts from 1 and Column is the number of right
// bounces taken so far, so 0 <= Column <= Row.
type Cell struct {
	Row    int `json:"row"    yaml:"row"`
	Column int `json:"column" yaml:"column"`
}

// SpecialCell is a multiplier peg.
type SpecialCell struct {
	Cell       `yaml:",inline"`
	Multiplier float64 `json:"multiplier" yaml:"multiplier"`
}

// PascalTriangle returns rows+1 rows of the binomial triangle with base 1.
// Values are float64 so large row counts only lose precision, never overflow.
func PascalTriangle(rows int) [][]float64 {
	if rows < 0 {
		return nil
	}
	tri := make([][]float64, rows+1)
	tri[0] = []float64{1}
	for r := 1; r <= rows; r++ {
		row := make([]float64, r+1)
		row[0], row[r] = 1, 1
		for c := 1; c < r; c++ {
			row[c] = tri[r-1][c-1] + tri[r-1][c]
		}
		tri[r] = row
	}
	return tri
}

// HoleProbabilities is the landing distribution over the rows+1 holes.
func HoleProbabilities(rows int) []float64 {
	tri := PascalTriangle(rows)
	if tri == nil {
		return nil
	}
	last := tri[rows]
	var sum float64
	for _, v := range last {
		sum += v
	}
	out := make([]float64, len(last))
	for i, v := range last {
		out[i] = v / sum
	}
	return out
}

func CumulativeHoleProbabilities(rows int) []float64 {
	probs := HoleProbabilities(rows)
	out := make([]float64, len(probs))
	var acc float64
	for i, p := range probs {
		acc += p
		out[i] = acc
	}
	return out
}

// HoleForRoll maps a uniform u in [0,1) to a hole through the cumulative distribution.
func HoleForRoll(cumulative []float64, u float64) int {
	i := sort.Search(len(cumulative), func(i int) bool { return cumulative[i] > u })
	if i == len(cumulative) {
		return len(cumulative) - 1
	}
	return i
}

// ProbabilityOfCell is the probability that a path passes through c.
func ProbabilityOfCell(c Cell) float64 {
	if c.Row < 0 || c.Column < 0 || c.Column > c.Row {
		return 0
	}
	return HoleProbabilities(c.Row)[c.Column]
}

// HoleProbabilitiesGivenCell is the hole distribution of a rows-row board
// conditioned on the path passing through c.
func HoleProbabilitiesGivenCell(rows int, c Cell) []float64 {
	out := make([]float64, rows+1)
	if c.Row > rows || c.Column < 0 || c.Column > c.Row {
		return out
	}
	for i, p := range HoleProbabilities(rows - c.Row) {
		out[c.Column+i] = p
	}
	return out
}

// PayoutAdjustmentFactors is the per-hole expected value a single multiplier
// peg adds to a table of ones. Factors of several pegs only add up when their
// paths are disjoint; see lightning.Adjustments for the exact combined form.
func PayoutAdjustmentFactors(rows int, sc SpecialCell) []float64 {
	p := ProbabilityOfCell(sc.Cell)
	given := HoleProbabilitiesGivenCell(rows, sc.Cell)
	out := make([]float64, rows+1)
	for i, g := range given {
		out[i] = p * g * (sc.Multiplier - 1)
	}
	return out
}
