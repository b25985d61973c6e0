/*
 * score_test.go, part of foldcore.
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

package score

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"github.com/rgallego/foldcore"
	"github.com/rgallego/foldcore/ten"
	"github.com/rgallego/foldcore/v3"
)

func smallConfig() *fold.Config {
	cfg := fold.DefaultConfig()
	cfg.DimAtomInputs = 16
	cfg.DimAtompairInputs = 4
	cfg.DimSingle = 16
	cfg.DimPairwise = 8
	cfg.PairformerDepth = 1
	cfg.PairformerHeads = 2
	cfg.NumRecycles = 0
	cfg.RelPosBins = 8
	cfg.DimToken = 16
	cfg.DimAtom = 8
	cfg.DimFourier = 8
	cfg.AtomHeads = 2
	cfg.TokenHeads = 2
	cfg.AtomWindow = 8
	cfg.TokenTransformerDepth = 1
	cfg.NumDistBins = 10
	cfg.NumPAEBins = 16
	cfg.NumPDEBins = 16
	cfg.NumPLDDTBins = 10
	cfg.NumDistogramBins = 10
	cfg.Sampler.NumSampleSteps = 4
	return cfg
}

func smallMockOptions() fold.MockOptions {
	return fold.MockOptions{
		Chains:           2,
		TokensPerChain:   3,
		MaxAtomsPerToken: 4,
		WithCoords:       true,
	}
}

func sampleBatch(t *testing.T, b int) (*fold.Model, []*fold.SampleOutput, *fold.BatchedAtomInput) {
	t.Helper()
	cfg := smallConfig()
	model, err := fold.NewModel(cfg, nil)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(31))
	batch := fold.MockBatch(rng, cfg, smallMockOptions(), b)
	outs, err := model.SampleBatch(batch, rng)
	require.NoError(t, err)
	return model, outs, batch
}

func TestRankBatchOneScalarPerElement(t *testing.T) {
	const b = 3
	_, outs, batch := sampleBatch(t, b)

	bundle, err := RankBatch(outs, batch, [][2]int{{0, 1}})
	require.NoError(t, err)

	slices := map[string][]float64{
		"full_complex":     bundle.FullComplex,
		"single_chain":     bundle.SingleChain,
		"interface":        bundle.Interface,
		"modified_residue": bundle.ModifiedResidue,
		"ptm":              bundle.PTM,
		"iptm":             bundle.IPTM,
	}
	for name, s := range slices {
		assert.Len(t, s, b, name)
		for _, v := range s {
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "%s not finite", name)
		}
	}
	for e := 0; e < b; e++ {
		assert.GreaterOrEqual(t, bundle.PTM[e], 0.0)
		assert.LessOrEqual(t, bundle.PTM[e], 1.0)
		assert.GreaterOrEqual(t, bundle.IPTM[e], 0.0)
		assert.LessOrEqual(t, bundle.IPTM[e], 1.0)
	}
}

func TestRankBatchLengthMismatch(t *testing.T) {
	_, outs, batch := sampleBatch(t, 2)
	var serr *fold.ShapeError
	_, err := RankBatch(outs[:1], batch, nil)
	require.True(t, errors.As(err, &serr), "got %v", err)
}

func TestInterfaceUnknownChain(t *testing.T) {
	_, outs, batch := sampleBatch(t, 1)
	var serr *fold.ShapeError
	_, err := ComputeInterfaceMetric(outs[0], batch.Elements[0], [][2]int{{0, 99}})
	require.True(t, errors.As(err, &serr), "got %v", err)
}

func TestComputePTMNoFrames(t *testing.T) {
	logits := ten.New(4, 4, 8)
	noFrames := make([]bool, 4)
	assert.Zero(t, ComputePTM(logits, []int{0, 0, 1, 1}, noFrames, false))
}

func TestHasClash(t *testing.T) {
	in := &fold.AtomInput{
		AsymID:           []int{0, 1},
		MoleculeAtomLens: []int{1, 1},
	}
	near, _ := v3.NewMatrix([]float64{0, 0, 0, 0.5, 0, 0})
	far, _ := v3.NewMatrix([]float64{0, 0, 0, 50, 0, 0})
	assert.True(t, HasClash(near, in))
	assert.False(t, HasClash(far, in))
}

func TestContactProbabilityFavorsShortBins(t *testing.T) {
	// all mass in bin 0 (center 3.875 A, well under the cutoff)
	logits := ten.New(2, 2, 10)
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			logits.Vec(i, j)[0] = 50
		}
	}
	contact := ContactProbability(logits)
	assert.InDelta(t, 1, contact.At(0, 1), 1e-9)

	// all mass in the last bin, far beyond the cutoff
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			logits.Vec(i, j)[0] = 0
			logits.Vec(i, j)[9] = 50
		}
	}
	contact = ContactProbability(logits)
	assert.InDelta(t, 0, contact.At(0, 1), 1e-9)
}

func TestComputeGPDE(t *testing.T) {
	// PDE mass concentrated in bin 4, distogram in contact everywhere:
	// the weighted error is the bin-4 center
	pde := ten.New(3, 3, 16)
	disto := ten.New(3, 3, 10)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			pde.Vec(i, j)[4] = 50
			disto.Vec(i, j)[0] = 50
		}
	}
	assert.InDelta(t, 4.5*paeBinWidth, ComputeGPDE(pde, disto), 1e-6)
}

func TestExpectedPLDDTRange(t *testing.T) {
	logits := ten.New(5, 10)
	for _, v := range ExpectedPLDDT(logits) {
		assert.Greater(t, v, 0.0)
		assert.Less(t, v, 1.0)
	}
}

func TestModelSelectionPicksBestLDDT(t *testing.T) {
	_, outs, batch := sampleBatch(t, 1)
	in := batch.Elements[0]
	truth := in.AtomPos

	// one candidate predicts the truth exactly, the other is heavily
	// perturbed
	good := NewCandidate(&fold.SampleOutput{
		Coords:          truth.Clone(),
		Logits:          outs[0].Logits,
		DistogramLogits: outs[0].DistogramLogits,
	})
	noisy := truth.Clone()
	rng := rand.New(rand.NewSource(33))
	for i := 0; i < noisy.NVecs(); i++ {
		for k := 0; k < 3; k++ {
			noisy.Set(i, k, noisy.At(i, k)+rng.NormFloat64()*5)
		}
	}
	bad := NewCandidate(&fold.SampleOutput{
		Coords:          noisy,
		Logits:          outs[0].Logits,
		DistogramLogits: outs[0].DistogramLogits,
	})

	dssp, _ := NewDSSP()
	res, err := ComputeModelSelectionScore([]Candidate{bad, good}, in, truth, dssp)
	require.NoError(t, err)
	require.Len(t, res.Scores, 2)
	assert.Equal(t, 1, res.Best)
	assert.Equal(t, good.ID, res.BestID)
	assert.Greater(t, res.Scores[1].WeightedLDDT, res.Scores[0].WeightedLDDT)
}

func TestModelSelectionErrors(t *testing.T) {
	_, outs, batch := sampleBatch(t, 1)
	in := batch.Elements[0]
	dssp := &DSSP{}

	var cerr *fold.ConfigError
	_, err := ComputeModelSelectionScore(nil, in, in.AtomPos, dssp)
	require.True(t, errors.As(err, &cerr), "got %v", err)

	_, err = ComputeModelSelectionScore([]Candidate{NewCandidate(outs[0])}, in, nil, dssp)
	require.True(t, errors.As(err, &cerr), "got %v", err)
}

func TestUnavailableDSSPIsTagged(t *testing.T) {
	_, outs, batch := sampleBatch(t, 1)
	d := &DSSP{}
	res := d.UnresolvedRASA(outs[0].Coords, batch.Elements[0])
	assert.False(t, res.Available)
	assert.Zero(t, res.Value)
}

func TestExpectedPAEMatchesPDE(t *testing.T) {
	logits := ten.New(3, 3, 8)
	data := logits.Data()
	for i := range data {
		data[i] = math.Sin(float64(i))
	}
	pae := ExpectedPAE(logits)
	pde := ExpectedPDE(logits)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			assert.Equal(t, pde.At(i, j), pae.At(i, j))
		}
	}
}
