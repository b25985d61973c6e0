/*
 * sampler.go, part of foldcore.
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

package fold

// Elucidated diffusion around the denoiser: the Karras noise schedule,
// stochastic churn sampling, and the sigma-weighted training objective.

import (
	"math"

	"go.uber.org/zap"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/rgallego/foldcore/v3"
)

// SamplerOptions collects the diffusion process constants. Zero values
// are not usable; start from DefaultSamplerOptions.
type SamplerOptions struct {
	NumSampleSteps int
	KarrasSchedule bool
	SigmaMin       float64
	SigmaMax       float64
	Rho            float64
	PMean          float64
	PStd           float64
	SChurn         float64
	SChurnTMin     float64
	SChurnTMax     float64
	SNoise         float64
	TransScale     float64 // translation scale of training augmentation
}

// DefaultSamplerOptions returns the standard elucidated-diffusion
// constants.
func DefaultSamplerOptions() SamplerOptions {
	return SamplerOptions{
		NumSampleSteps: 32,
		KarrasSchedule: true,
		SigmaMin:       0.002,
		SigmaMax:       80,
		Rho:            7,
		PMean:          -1.2,
		PStd:           1.5,
		SChurn:         80,
		SChurnTMin:     0.05,
		SChurnTMax:     50,
		SNoise:         1.003,
		TransScale:     1,
	}
}

// StepRecorder observes the coordinates after each sampling step.
// Recording failures abort the sample.
type StepRecorder interface {
	RecordStep(step int, sigma float64, coords *v3.Matrix) error
}

// ElucidatedSampler drives the denoiser through the reverse diffusion
// process and computes its training objective.
type ElucidatedSampler struct {
	Net      *DiffusionModule
	Opts     SamplerOptions
	Logger   *zap.Logger
	Recorder StepRecorder
}

// NewElucidatedSampler wraps a denoiser. A nil logger disables logging.
func NewElucidatedSampler(net *DiffusionModule, opts SamplerOptions, logger *zap.Logger) *ElucidatedSampler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ElucidatedSampler{Net: net, Opts: opts, Logger: logger}
}

// SampleSchedule returns the decreasing noise levels of the reverse
// process with a trailing zero: NumSampleSteps values following the
// rho-warped Karras interpolation between SigmaMax and SigmaMin, or a
// plain linear ramp when KarrasSchedule is off.
func (s *ElucidatedSampler) SampleSchedule() []float64 {
	n := s.Opts.NumSampleSteps
	out := make([]float64, n+1)
	for i := 0; i < n; i++ {
		t := 0.0
		if n > 1 {
			t = float64(i) / float64(n-1)
		}
		if s.Opts.KarrasSchedule {
			inv := 1 / s.Opts.Rho
			lo, hi := math.Pow(s.Opts.SigmaMin, inv), math.Pow(s.Opts.SigmaMax, inv)
			out[i] = math.Pow(hi+t*(lo-hi), s.Opts.Rho)
		} else {
			out[i] = s.Opts.SigmaMax + t*(s.Opts.SigmaMin-s.Opts.SigmaMax)
		}
	}
	out[n] = 0
	return out
}

// Sample draws a structure for one example: coordinates start as pure
// noise at SigmaMax and are walked down the schedule with Euler steps
// and optional stochastic churn. The result has one row per atom.
func (s *ElucidatedSampler) Sample(trunk *TrunkOutput, in *AtomInput, rng *rand.Rand) (*v3.Matrix, error) {
	if s.Opts.NumSampleSteps < 1 {
		return nil, configErrorf(ZeroSampleSteps)
	}
	m := in.NumAtoms()
	sigmas := s.SampleSchedule()

	x := v3.Zeros(m)
	for i := 0; i < m; i++ {
		for k := 0; k < 3; k++ {
			x.Set(i, k, rng.NormFloat64()*sigmas[0])
		}
	}

	gammaMax := math.Sqrt2 - 1
	for step := 0; step < s.Opts.NumSampleSteps; step++ {
		sigma, sigmaNext := sigmas[step], sigmas[step+1]

		gamma := 0.0
		if sigma >= s.Opts.SChurnTMin && sigma <= s.Opts.SChurnTMax {
			gamma = math.Min(s.Opts.SChurn/float64(s.Opts.NumSampleSteps), gammaMax)
		}
		sigmaHat := sigma * (1 + gamma)
		if gamma > 0 {
			bump := math.Sqrt(sigmaHat*sigmaHat-sigma*sigma) * s.Opts.SNoise
			for i := 0; i < m; i++ {
				for k := 0; k < 3; k++ {
					x.Set(i, k, x.At(i, k)+rng.NormFloat64()*bump)
				}
			}
		}

		denoised := s.Net.Denoise(x, sigmaHat, trunk, in)
		for i := 0; i < m; i++ {
			for k := 0; k < 3; k++ {
				d := (x.At(i, k) - denoised.At(i, k)) / sigmaHat
				x.Set(i, k, x.At(i, k)+(sigmaNext-sigmaHat)*d)
			}
		}

		s.Logger.Debug("sampling step",
			zap.Int("step", step),
			zap.Float64("sigma", sigmaHat),
			zap.Float64("sigma_next", sigmaNext))
		if s.Recorder != nil {
			if err := s.Recorder.RecordStep(step, sigmaNext, x); err != nil {
				return nil, errDecorate(err, "ElucidatedSampler.Sample")
			}
		}
	}
	return x, nil
}

// NoiseDistribution returns the training-time distribution of sigma,
// log-normal with location PMean and scale PStd.
func (s *ElucidatedSampler) NoiseDistribution(rng *rand.Rand) distuv.LogNormal {
	return distuv.LogNormal{Mu: s.Opts.PMean, Sigma: s.Opts.PStd, Src: rng}
}

// lossWeight is the elucidated-diffusion weighting of the denoising MSE
// at noise level sigma.
func (s *ElucidatedSampler) lossWeight(sigma float64) float64 {
	sd := s.Net.cfg.SigmaData
	return (sigma*sigma + sd*sd) / ((sigma * sd) * (sigma * sd))
}

// LossBreakdown itemizes the diffusion training objective.
type LossBreakdown struct {
	Denoising  float64
	SmoothLDDT float64
	Bond       float64
	Total      float64
}

// Loss computes the training objective for one example with known
// coordinates: the ground truth is centered and randomly rotated, noised
// at a sigma drawn from the log-normal noise distribution, denoised, and
// scored by weighted MSE plus a smooth lDDT term and, where token bonds
// are given, a bond length term. The denoised coordinates and the
// augmented ground truth are returned for downstream supervision.
func (s *ElucidatedSampler) Loss(trunk *TrunkOutput, in *AtomInput, rng *rand.Rand) (LossBreakdown, *v3.Matrix, *v3.Matrix, error) {
	var bd LossBreakdown
	if in.AtomPos == nil {
		return bd, nil, nil, configErrorf(NilCoordinates)
	}
	m := in.NumAtoms()
	truth := CentreRandomAugmentation(in.AtomPos, rng, s.Opts.TransScale)

	sigma := s.NoiseDistribution(rng).Rand()
	noisy := v3.Zeros(m)
	for i := 0; i < m; i++ {
		for k := 0; k < 3; k++ {
			noisy.Set(i, k, truth.At(i, k)+rng.NormFloat64()*sigma)
		}
	}
	denoised := s.Net.Denoise(noisy, sigma, trunk, in)

	var mse, count float64
	for i := 0; i < m; i++ {
		if in.AtomMask != nil && !in.AtomMask[i] {
			continue
		}
		for k := 0; k < 3; k++ {
			d := denoised.At(i, k) - truth.At(i, k)
			mse += d * d
		}
		count++
	}
	if count > 0 {
		mse /= count * 3
	}
	bd.Denoising = s.lossWeight(sigma) * mse

	isDNA, isRNA := nucleicAtomFlags(in)
	bd.SmoothLDDT = SmoothLDDTLoss(denoised, truth, isDNA, isRNA)

	bd.Bond = bondLengthLoss(denoised, truth, in)

	bd.Total = bd.Denoising + bd.SmoothLDDT + bd.Bond
	s.Logger.Debug("diffusion loss",
		zap.Float64("sigma", sigma),
		zap.Float64("denoising", bd.Denoising),
		zap.Float64("smooth_lddt", bd.SmoothLDDT),
		zap.Float64("bond", bd.Bond))
	return bd, denoised, truth, nil
}

// nucleicAtomFlags expands the token molecule types to per-atom DNA and
// RNA flags.
func nucleicAtomFlags(in *AtomInput) (isDNA, isRNA []bool) {
	if in.IsMoleculeTypes == nil {
		return nil, nil
	}
	n := in.NumTokens()
	dna := make([]bool, n)
	rna := make([]bool, n)
	for i := 0; i < n; i++ {
		dna[i] = in.IsMoleculeTypes[i][MolDNA]
		rna[i] = in.IsMoleculeTypes[i][MolRNA]
	}
	return RepeatInterleaveBools(dna, in.MoleculeAtomLens), RepeatInterleaveBools(rna, in.MoleculeAtomLens)
}

// bondLengthLoss penalizes deviations of predicted bonded distances from
// the ground truth, over the covalent token bonds and their
// representative atoms. Zero when no bonds are given.
func bondLengthLoss(pred, truth *v3.Matrix, in *AtomInput) float64 {
	if in.TokenBonds == nil || in.MoleculeAtomIndices == nil {
		return 0
	}
	var loss, count float64
	n := in.NumTokens()
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if !in.TokenBonds[i][j] {
				continue
			}
			ai, aj := in.MoleculeAtomIndices[i], in.MoleculeAtomIndices[j]
			if ai < 0 || aj < 0 {
				continue
			}
			d := rowDist(pred, ai, aj) - rowDist(truth, ai, aj)
			loss += d * d
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return loss / count
}
