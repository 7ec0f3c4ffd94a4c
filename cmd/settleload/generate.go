package main

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"settleload/internal/action"
	"settleload/internal/plan"
	"settleload/internal/scenario"
)

func generateCmd() *cobra.Command {
	var (
		seed   int64
		rawDir string
	)
	cmd := &cobra.Command{
		Use:   "generate [plan] <out>",
		Short: "Expand a test plan into a scenario file",
		Long: `Expand a test plan (YAML or JSON) into an ordered scenario of actions.
With --raw-dir every *.json file in the directory is appended as a
transfer_raw action; the plan may then be omitted.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var planPath, out string
			if len(args) == 2 {
				planPath, out = args[0], args[1]
			} else {
				out = args[0]
				if rawDir == "" {
					return errors.New("a plan is required unless --raw-dir is set")
				}
			}
			if seed == 0 {
				seed = time.Now().UnixNano()
			}

			var actions []action.Action
			if planPath != "" {
				p, err := plan.Load(planPath)
				if err != nil {
					return err
				}
				actions, err = scenario.NewGenerator(rand.NewSource(seed)).Generate(p)
				if err != nil {
					return err
				}
			}
			if rawDir != "" {
				raws, err := scenario.LoadRawDir(rawDir)
				if err != nil {
					return err
				}
				actions = append(actions, raws...)
			}

			if len(actions) == 0 {
				return fmt.Errorf("nothing to write to %s: %w", out, scenario.ErrEmptyScenario)
			}
			if err := scenario.Save(out, actions); err != nil {
				return err
			}
			log.Info().Str("out", out).Int("actions", len(actions)).Int64("seed", seed).Msg("scenario written")
			return nil
		},
	}
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed for field values (0 = time based)")
	cmd.Flags().StringVar(&rawDir, "raw-dir", "", "directory of raw transfer bodies to append")
	return cmd
}
