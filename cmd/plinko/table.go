package main

import (
	"fmt"
	"os"

	"github.com/fystack/plinko-engine/internal/lightning"
	"github.com/fystack/plinko-engine/internal/plinko"
	"github.com/fystack/plinko-engine/pkg/common/enum"
	"github.com/fystack/plinko-engine/pkg/common/logger"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type tableOutput struct {
	Rows          int       `yaml:"rows"`
	Risk          enum.Risk `yaml:"risk"`
	Edge          float64   `yaml:"edge"`
	Payouts       []float64 `yaml:"payouts"`
	Probabilities []float64 `yaml:"probabilities"`
	ExpectedValue float64   `yaml:"expected_value"`
}

func newTableCmd() *cobra.Command {
	var (
		rows int
		risk string
		edge float64
	)
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Print the standard payout table for rows, risk and edge.",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := enum.ParseRisk(risk)
			if err != nil {
				return err
			}
			table, err := plinko.PayoutList(rows, r, edge)
			if err != nil {
				return err
			}
			probs := plinko.HoleProbabilities(rows)
			if ok, msg := plinko.VerifyPayoutAverage(table, probs, edge); !ok {
				logger.Warn("Payout table off target", "detail", msg)
			}
			return writeYAML(tableOutput{
				Rows:          rows,
				Risk:          r,
				Edge:          edge,
				Payouts:       table,
				Probabilities: probs,
				ExpectedValue: plinko.ExpectedValue(table, nil, probs),
			})
		},
	}
	cmd.Flags().IntVar(&rows, "rows", 16, "Board rows (8, 12 or 16).")
	cmd.Flags().StringVar(&risk, "risk", string(enum.RiskMedium), "Risk level.")
	cmd.Flags().Float64Var(&edge, "edge", 1, "House edge in percent.")
	return cmd
}

func newBoardCmd(flags *rootFlags) *cobra.Command {
	var hash string
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Print the lightning board derived from an epoch hash.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if hash == "" {
				return fmt.Errorf("--hash is required")
			}
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			lcfg := cfg.Games.Lightning
			generator, err := lightning.NewGenerator(lcfg.Board, lcfg.Edge, logger.L())
			if err != nil {
				return err
			}
			b, err := generator.Generate(hash)
			if err != nil {
				return err
			}
			return writeYAML(b)
		},
	}
	cmd.Flags().StringVar(&hash, "hash", "", "Epoch hash.")
	return cmd
}

func writeYAML(v any) error {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
