package plinko

import (
	"errors"
	"fmt"

	"github.com/fystack/plinko-engine/internal/fairness"
)

var ErrInsufficientEntropy = errors.New("insufficient random material for row count")

// Sample walks one float per row: values >= 0.5 bounce right.
func Sample(floats []float64, rows int) ([]Cell, error) {
	if rows <= 0 {
		return nil, fmt.Errorf("rows must be positive, got %d", rows)
	}
	if len(floats) < rows {
		return nil, fmt.Errorf("%w: need %d, have %d", ErrInsufficientEntropy, rows, len(floats))
	}

	path := make([]Cell, rows)
	col := 0
	for i := 0; i < rows; i++ {
		f := floats[i]
		if f < 0 || f >= 1 {
			return nil, fmt.Errorf("random value %v at row %d outside [0,1)", f, i+1)
		}
		if f >= 0.5 {
			col++
		}
		path[i] = Cell{Row: i + 1, Column: col}
	}
	return path, nil
}

// SamplePath derives the path of play nonce from the server and client seeds.
func SamplePath(serverSeed, clientSeed string, nonce uint64, rows int) ([]Cell, error) {
	return Sample(fairness.Floats(serverSeed, clientSeed, nonce, rows), rows)
}

// Hole is the landing slot of a sampled path.
func Hole(path []Cell) int {
	if len(path) == 0 {
		return 0
	}
	return path[len(path)-1].Column
}

// StruckMultiplier is the product of the multipliers of every special cell on path.
func StruckMultiplier(path []Cell, cells []SpecialCell) (float64, []SpecialCell) {
	byCell := make(map[Cell]SpecialCell, len(cells))
	for _, sc := range cells {
		byCell[sc.Cell] = sc
	}

	product := 1.0
	var struck []SpecialCell
	for _, c := range path {
		if sc, ok := byCell[c]; ok {
			product *= sc.Multiplier
			struck = append(struck, sc)
		}
	}
	return product, struck
}
