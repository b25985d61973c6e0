/*
 * sample.go, part of foldcore.
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
	"os"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/exp/rand"

	"github.com/rgallego/foldcore"
	"github.com/rgallego/foldcore/confplot"
	"github.com/rgallego/foldcore/report"
	"github.com/rgallego/foldcore/score"
	"github.com/rgallego/foldcore/traj"
)

func sampleCmd() *cli.Command {
	var (
		configPath string
		seed       uint64
		chains     int
		tokens     int
		steps      int
		reportPath string
		trajPath   string
		plotPrefix string
		verbose    bool
	)
	return &cli.Command{
		Name:  "sample",
		Usage: "Predict a structure for a synthetic example and report confidences",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML configuration file", Destination: &configPath},
			&cli.Uint64Flag{Name: "seed", Value: 42, Usage: "random seed for sampling", Destination: &seed},
			&cli.IntFlag{Name: "chains", Usage: "chains in the synthetic example", Destination: &chains},
			&cli.IntFlag{Name: "tokens", Usage: "tokens per chain", Destination: &tokens},
			&cli.IntFlag{Name: "steps", Usage: "reverse-diffusion steps", Destination: &steps},
			&cli.StringFlag{Name: "report", Value: "prediction.json", Usage: "output report path", Destination: &reportPath},
			&cli.StringFlag{Name: "traj", Usage: "record the denoising trajectory to this file", Destination: &trajPath},
			&cli.StringFlag{Name: "plots", Usage: "prefix for PAE/pLDDT plot files", Destination: &plotPrefix},
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
			if fc.Steps > 0 {
				cfg.Sampler.NumSampleSteps = fc.Steps
			}
			if steps > 0 {
				cfg.Sampler.NumSampleSteps = steps
			}

			model, err := fold.NewModel(cfg, logger)
			if err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(seed))
			in := fold.MockAtomInput(rng, cfg, mockOptions(fc, chains, tokens))

			if trajPath != "" {
				w, err := traj.NewWriter(trajPath, in.NumAtoms(), map[string]string{"kind": "denoising"})
				if err != nil {
					return err
				}
				defer w.Close()
				model.Sampler.Recorder = w
			}

			out, err := model.Sample(in, rng)
			if err != nil {
				return err
			}
			logger.Info("sampled structure",
				zap.Int("atoms", in.NumAtoms()),
				zap.Int("tokens", in.NumTokens()),
				zap.Int("steps", cfg.Sampler.NumSampleSteps))

			batch := &fold.BatchedAtomInput{Elements: []*fold.AtomInput{in}}
			bundle, err := score.RankBatch([]*fold.SampleOutput{out}, batch, nil)
			if err != nil {
				return err
			}
			logger.Info("ranking scores",
				zap.Float64("ptm", bundle.PTM[0]),
				zap.Float64("iptm", bundle.IPTM[0]),
				zap.Float64("full_complex", bundle.FullComplex[0]))

			rep, err := report.FromSamples([]*fold.SampleOutput{out}, batch, bundle)
			if err != nil {
				return err
			}
			f, err := os.Create(reportPath)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := rep.Write(f); err != nil {
				return err
			}

			if plotPrefix != "" {
				pae := score.ExpectedPAE(out.Logits.PAE)
				if err := confplot.PAEPlot(pae, "Predicted aligned error", plotPrefix+"-pae"); err != nil {
					return err
				}
				plddt := score.ExpectedPLDDT(out.Logits.PLDDT)
				if err := confplot.PLDDTPlot(plddt, "Predicted confidence", plotPrefix+"-plddt"); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
