package lightning

import (
	"github.com/fystack/plinko-engine/internal/plinko"
)

// Board is the payout layout of one lightning epoch.
type Board struct {
	Rows        int                  `json:"rows"         yaml:"rows"`
	Payouts     []float64            `json:"payouts"      yaml:"payouts"`
	Cells       []plinko.SpecialCell `json:"cells"        yaml:"cells"`
	Adjustments []float64            `json:"adjustments"  yaml:"adjustments"`
	// Attempt is the zero-based attempt that produced the board.
	Attempt int `json:"attempt" yaml:"attempt"`
	// Fallback is set when no attempt converged and the flat table was used.
	Fallback      bool    `json:"fallback"       yaml:"fallback"`
	ExpectedValue float64 `json:"expected_value" yaml:"expected_value"`
}

// Payout returns the hole multiplier and the product of multiplier pegs on path.
func (b *Board) Payout(path []plinko.Cell) (hole int, holeMultiplier, cellsMultiplier float64, struck []plinko.SpecialCell) {
	hole = plinko.Hole(path)
	cellsMultiplier, struck = plinko.StruckMultiplier(path, b.Cells)
	return hole, b.Payouts[hole], cellsMultiplier, struck
}

// EnumeratedEV walks all 2^rows paths through the sampler and the board and
// averages the final multiplier. It shares nothing with the generator's own
// expected value computation, so it serves as an independent RTP check.
func (b *Board) EnumeratedEV() float64 {
	floats := make([]float64, b.Rows)
	var total float64
	for mask := 0; mask < 1<<b.Rows; mask++ {
		for i := range floats {
			floats[i] = 0.25
			if mask>>i&1 == 1 {
				floats[i] = 0.75
			}
		}
		path, err := plinko.Sample(floats, b.Rows)
		if err != nil {
			return 0
		}
		_, holeMult, cellsMult, _ := b.Payout(path)
		total += holeMult * cellsMult
	}
	return total / float64(int(1)<<b.Rows)
}

// Adjustments returns, per hole, the mean multiplier product over every path
// landing in that hole. All 2^rows paths are enumerated so overlapping pegs
// are accounted for jointly.
func Adjustments(rows int, cells []plinko.SpecialCell) []float64 {
	grid := make([][]float64, rows+1)
	for r := range grid {
		grid[r] = make([]float64, r+1)
		for c := range grid[r] {
			grid[r][c] = 1
		}
	}
	for _, sc := range cells {
		if sc.Row >= 1 && sc.Row <= rows && sc.Column >= 0 && sc.Column <= sc.Row {
			grid[sc.Row][sc.Column] *= sc.Multiplier
		}
	}

	sums := make([]float64, rows+1)
	counts := make([]float64, rows+1)
	for mask := 0; mask < 1<<rows; mask++ {
		col := 0
		product := 1.0
		for i := 0; i < rows; i++ {
			if mask>>i&1 == 1 {
				col++
			}
			product *= grid[i+1][col]
		}
		sums[col] += product
		counts[col]++
	}

	adj := make([]float64, rows+1)
	for h := range adj {
		adj[h] = sums[h] / counts[h]
	}
	return adj
}

func manhattan(a, b plinko.Cell) int {
	return abs(a.Row-b.Row) + abs(a.Column-b.Column)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
