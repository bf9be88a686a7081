package lightning

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/fystack/plinko-engine/internal/fairness"
	"github.com/fystack/plinko-engine/internal/plinko"
	"github.com/fystack/plinko-engine/pkg/common/config"
	"github.com/fystack/plinko-engine/pkg/common/enum"
	"github.com/fystack/plinko-engine/pkg/common/logger"
	"github.com/fystack/plinko-engine/pkg/common/types"
	"github.com/fystack/plinko-engine/pkg/common/utils"
	"github.com/samber/lo"
)

// ErrRejected marks a candidate board that failed a constraint; the generator
// moves on to the next attempt.
var ErrRejected = errors.New("lightning board rejected")

type Generator struct {
	cfg   config.BoardConfig
	edge  float64
	probs []float64
	base  []float64
	// accept runs after the built-in checks; an ErrRejected result moves on
	// to the next attempt. nil accepts every candidate.
	accept func(*Board) error
	logger *slog.Logger
}

func NewGenerator(cfg config.BoardConfig, edge float64, l *slog.Logger) (*Generator, error) {
	const op = "lightning.NewGenerator"
	if err := plinko.ValidateEdge(edge); err != nil {
		return nil, err
	}
	curve, ok := plinko.Curve(cfg.Rows, enum.RiskHigh)
	if !ok {
		return nil, types.Validation(op, "no payout curve for %d rows", cfg.Rows)
	}
	if cfg.MinRow < 2 || cfg.MinRow >= cfg.Rows {
		return nil, types.Validation(op, "min row %d must be in [2,%d)", cfg.MinRow, cfg.Rows)
	}
	if len(cfg.Multipliers) == 0 || cfg.MaxPegs < cfg.MinPegs || cfg.MaxAttempts < 1 || cfg.PlacementRetries < 1 {
		return nil, types.Validation(op, "invalid peg configuration")
	}
	if 2*cfg.ZeroBandMax+1 >= cfg.Rows+1 || cfg.ZeroBandMin < 0 || cfg.ZeroBandMax < cfg.ZeroBandMin {
		return nil, types.Validation(op, "zero band [%d,%d] invalid for %d rows", cfg.ZeroBandMin, cfg.ZeroBandMax, cfg.Rows)
	}

	probs := plinko.HoleProbabilities(cfg.Rows)
	return &Generator{
		cfg:    cfg,
		edge:   edge,
		probs:  probs,
		base:   plinko.Scale(curve, probs, plinko.RTP(edge)),
		logger: logger.Or(l).With("component", "lightning"),
	}, nil
}

func (g *Generator) Rows() int { return g.cfg.Rows }

// Generate derives the board for an epoch hash. It never fails on convergence:
// after MaxAttempts rejected candidates it returns the flat fallback board.
func (g *Generator) Generate(epochHash string) (*Board, error) {
	if epochHash == "" {
		return nil, types.Defect("lightning.Generate", errors.New("empty epoch hash"))
	}

	for attempt := 0; attempt < g.cfg.MaxAttempts; attempt++ {
		board, err := g.attempt(epochHash, attempt)
		if err == nil && g.accept != nil {
			err = g.accept(board)
		}
		if err == nil {
			return board, nil
		}
		if !errors.Is(err, ErrRejected) {
			return nil, err
		}
		g.logger.Debug("Board candidate rejected", "attempt", attempt, "reason", err)
	}

	g.logger.Warn("Lightning board did not converge, using flat table",
		"attempts", g.cfg.MaxAttempts,
		"rows", g.cfg.Rows,
	)
	return g.fallback(), nil
}

func (g *Generator) attempt(epochHash string, attempt int) (*Board, error) {
	rows := g.cfg.Rows
	rng := fairness.NewByteGenerator(epochHash, "lightning:"+strconv.Itoa(attempt), 0)
	table := append([]float64(nil), g.base...)

	// zero the centre band and hand its mass to the outer holes
	center := rows / 2
	width := g.cfg.ZeroBandMin + int(rng.Float()*float64(g.cfg.ZeroBandMax-g.cfg.ZeroBandMin+1))
	excluded := make(map[int]bool, 2*width+1)
	var mass float64
	for h := center - width; h <= center+width; h++ {
		excluded[h] = true
		mass += table[h] * g.probs[h]
		table[h] = 0
	}
	if err := redistribute(table, g.probs, mass, excluded); err != nil {
		return nil, err
	}
	if err := capPayouts(table, g.probs, g.cfg.MaxPayout, excluded); err != nil {
		return nil, err
	}

	cells, err := g.placePegs(rng)
	if err != nil {
		return nil, err
	}

	adj := Adjustments(rows, cells)
	payouts := make([]float64, rows+1)
	for h := range payouts {
		if !utils.IsFinite(adj[h]) || adj[h] <= 0 {
			return nil, fmt.Errorf("%w: hole %d adjustment %v", ErrRejected, h, adj[h])
		}
		payouts[h] = table[h] / adj[h]
	}
	payouts = plinko.RoundPreserving(payouts, adj, g.probs, excluded)

	for h, v := range payouts {
		if !utils.IsFinite(v) || v < 0 {
			return nil, fmt.Errorf("%w: hole %d payout %v", ErrRejected, h, v)
		}
	}
	ev := plinko.ExpectedValue(payouts, adj, g.probs)
	if math.Abs(ev-plinko.RTP(g.edge)) > g.cfg.Tolerance {
		return nil, fmt.Errorf("%w: expected value %.6f", ErrRejected, ev)
	}

	return &Board{
		Rows:          rows,
		Payouts:       payouts,
		Cells:         cells,
		Adjustments:   adj,
		Attempt:       attempt,
		ExpectedValue: ev,
	}, nil
}

// placePegs draws K pegs on interior columns at or below MinRow. A peg closer
// than MinSeparation to an earlier one is redrawn, at most PlacementRetries times.
func (g *Generator) placePegs(rng *fairness.ByteGenerator) ([]plinko.SpecialCell, error) {
	cfg := g.cfg
	count := cfg.MinPegs + int(rng.Float()*float64(cfg.MaxPegs-cfg.MinPegs+1))
	cells := make([]plinko.SpecialCell, 0, count)

	for len(cells) < count {
		placed := false
		for try := 0; try < cfg.PlacementRetries; try++ {
			row := cfg.MinRow + int(rng.Float()*float64(cfg.Rows-cfg.MinRow))
			col := 1 + int(rng.Float()*float64(row-1))
			mult := cfg.Multipliers[int(rng.Float()*float64(len(cfg.Multipliers)))]
			candidate := plinko.SpecialCell{Cell: plinko.Cell{Row: row, Column: col}, Multiplier: mult}

			tooClose := lo.ContainsBy(cells, func(sc plinko.SpecialCell) bool {
				return manhattan(sc.Cell, candidate.Cell) < cfg.MinSeparation
			})
			if !tooClose {
				cells = append(cells, candidate)
				placed = true
				break
			}
		}
		if !placed {
			return nil, fmt.Errorf("%w: could not place peg %d after %d tries", ErrRejected, len(cells)+1, cfg.PlacementRetries)
		}
	}
	return cells, nil
}

func (g *Generator) fallback() *Board {
	rows := g.cfg.Rows
	rtp := plinko.RTP(g.edge)
	payouts := make([]float64, rows+1)
	adj := make([]float64, rows+1)
	for h := range payouts {
		payouts[h] = rtp
		adj[h] = 1
	}
	return &Board{
		Rows:          rows,
		Payouts:       payouts,
		Cells:         []plinko.SpecialCell{},
		Adjustments:   adj,
		Attempt:       g.cfg.MaxAttempts,
		Fallback:      true,
		ExpectedValue: rtp,
	}
}

// redistribute spreads mass of expected value evenly over the non-excluded
// holes, so a recipient's payout grows in inverse proportion to its probability.
func redistribute(table, probs []float64, mass float64, excluded map[int]bool) error {
	recipients := lo.Filter(lo.Range(len(table)), func(h int, _ int) bool { return !excluded[h] })
	if len(recipients) == 0 {
		return fmt.Errorf("%w: no holes left to receive payout mass", ErrRejected)
	}
	share := mass / float64(len(recipients))
	for _, h := range recipients {
		table[h] += share / probs[h]
	}
	return nil
}

// capPayouts clamps holes above limit and redistributes the excess until no
// open hole exceeds it. Capped holes stop receiving mass.
func capPayouts(table, probs []float64, limit float64, excluded map[int]bool) error {
	closed := make(map[int]bool, len(table))
	for h := range excluded {
		closed[h] = true
	}
	for {
		var excess float64
		over := false
		for h, v := range table {
			if closed[h] || v <= limit {
				continue
			}
			excess += (v - limit) * probs[h]
			table[h] = limit
			closed[h] = true
			over = true
		}
		if !over {
			return nil
		}
		if err := redistribute(table, probs, excess, closed); err != nil {
			return err
		}
	}
}
