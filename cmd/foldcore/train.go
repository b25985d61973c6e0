/*
 * train.go, part of foldcore.
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
)

func trainCmd() *cli.Command {
	var (
		configPath string
		seed       uint64
		chains     int
		tokens     int
		batchSize  int
		msaSeqs    int
		templates  int
		verbose    bool
	)
	return &cli.Command{
		Name:  "train",
		Usage: "Evaluate the training objective on a synthetic batch",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML configuration file", Destination: &configPath},
			&cli.Uint64Flag{Name: "seed", Value: 42, Usage: "random seed", Destination: &seed},
			&cli.IntFlag{Name: "chains", Usage: "chains in the synthetic example", Destination: &chains},
			&cli.IntFlag{Name: "tokens", Usage: "tokens per chain", Destination: &tokens},
			&cli.IntFlag{Name: "batch", Value: 2, Usage: "batch size", Destination: &batchSize},
			&cli.IntFlag{Name: "msa", Value: 4, Usage: "MSA sequences per example", Destination: &msaSeqs},
			&cli.IntFlag{Name: "templates", Value: 2, Usage: "templates per example", Destination: &templates},
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
			opts := mockOptions(fc, chains, tokens)
			opts.NumMSASeqs = msaSeqs
			opts.NumTemplates = templates
			opts.WithCoords = true
			batch := fold.MockBatch(rng, cfg, opts, batchSize)

			avg, per, err := model.LossBatch(batch, rng)
			if err != nil {
				return err
			}
			for e, o := range per {
				logger.Info("example loss",
					zap.Int("element", e),
					zap.Float64("total", o.Total),
					zap.Float64("denoising", o.Diffusion.Denoising),
					zap.Float64("smooth_lddt", o.Diffusion.SmoothLDDT),
					zap.Float64("bond", o.Diffusion.Bond),
					zap.Float64("distogram", o.Distogram),
					zap.Float64("pae", o.PAE),
					zap.Float64("resolved", o.Resolved))
			}
			logger.Info("batch loss", zap.Float64("total", avg.Total))
			return nil
		},
	}
}
