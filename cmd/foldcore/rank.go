/*
 * rank.go, part of foldcore.
 *
 * Copyright 2024 Rodrigo Gallego <rgallego{at}protonmaildotcom>
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License as
 * published by the Free Software Foundation; either version 2.1 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU Lesser General
 * Public License along with this program.  If not, see
 * <http://www.gnu.org/licenses/>.
 *
 */

package main

import (
	"context"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/exp/rand"

	"github.com/rgallego/foldcore"
	"github.com/rgallego/foldcore/score"
)

func rankCmd() *cli.Command {
	var (
		configPath string
		seed       uint64
		chains     int
		tokens     int
		candidates int
		verbose    bool
	)
	return &cli.Command{
		Name:  "rank",
		Usage: "Sample a candidate pool and run model selection against the known structure",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML configuration file", Destination: &configPath},
			&cli.Uint64Flag{Name: "seed", Value: 42, Usage: "random seed for sampling", Destination: &seed},
			&cli.IntFlag{Name: "chains", Usage: "chains in the synthetic example", Destination: &chains},
			&cli.IntFlag{Name: "tokens", Usage: "tokens per chain", Destination: &tokens},
			&cli.IntFlag{Name: "candidates", Value: 3, Usage: "number of candidate structures", Destination: &candidates},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "development logging", Destination: &verbose},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			logger, err := newLogger(verbose)
			if err != nil {
				return err
			}
			defer logger.Sync()

			cfg, fc, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			model, err := fold.NewModel(cfg, logger)
			if err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(seed))
			in := fold.MockAtomInput(rng, cfg, mockOptions(fc, chains, tokens))

			pool := make([]score.Candidate, 0, candidates)
			for c := 0; c < candidates; c++ {
				out, err := model.Sample(in, rng)
				if err != nil {
					return err
				}
				pool = append(pool, score.NewCandidate(out))
			}

			dssp, ok := score.NewDSSP()
			if !ok {
				logger.Info("mkdssp not found, accessibility sub-score will be skipped")
			}
			res, err := score.ComputeModelSelectionScore(pool, in, in.AtomPos, dssp)
			if err != nil {
				return err
			}
			for c, cs := range res.Scores {
				fields := []zap.Field{
					zap.Int("candidate", c),
					zap.String("id", cs.ID.String()),
					zap.Float64("gpde", cs.GPDE),
					zap.Float64("weighted_lddt", cs.WeightedLDDT),
				}
				if cs.UnresolvedRASA.Available {
					fields = append(fields, zap.Float64("unresolved_rasa", cs.UnresolvedRASA.Value))
				} else {
					fields = append(fields, zap.String("unresolved_rasa", "unavailable"))
				}
				logger.Info("candidate scored", fields...)
			}
			logger.Info("selected model",
				zap.Int("best", res.Best),
				zap.String("id", res.BestID.String()))
			return nil
		},
	}
}
