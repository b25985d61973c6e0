/*
 * report_test.go, part of foldcore.
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

package report

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"github.com/rgallego/foldcore"
	"github.com/rgallego/foldcore/score"
)

func sampleReportInputs(t *testing.T) ([]*fold.SampleOutput, *fold.BatchedAtomInput, *score.RankingScoreBundle) {
	t.Helper()
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
	cfg.Sampler.NumSampleSteps = 2

	model, err := fold.NewModel(cfg, nil)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(51))
	batch := fold.MockBatch(rng, cfg, fold.MockOptions{
		Chains:           2,
		TokensPerChain:   3,
		MaxAtomsPerToken: 4,
		WithCoords:       true,
	}, 2)
	outs, err := model.SampleBatch(batch, rng)
	require.NoError(t, err)
	bundle, err := score.RankBatch(outs, batch, nil)
	require.NoError(t, err)
	return outs, batch, bundle
}

func TestReportRoundTrip(t *testing.T) {
	outs, batch, bundle := sampleReportInputs(t)

	rep, err := FromSamples(outs, batch, bundle)
	require.NoError(t, err)
	require.Len(t, rep.Predictions, 2)
	for e, p := range rep.Predictions {
		in := batch.Elements[e]
		assert.Equal(t, in.NumTokens(), p.NumTokens)
		assert.Equal(t, in.NumAtoms(), p.NumAtoms)
		assert.Len(t, p.Coords, in.NumAtoms())
		assert.Len(t, p.PLDDT, in.NumAtoms())
		assert.NotEmpty(t, p.ID)
	}

	var buf bytes.Buffer
	require.NoError(t, rep.Write(&buf))
	back, err := Read(&buf)
	require.NoError(t, err)
	require.Len(t, back.Predictions, 2)
	assert.Equal(t, rep.Predictions[0].ID, back.Predictions[0].ID)
	assert.InDelta(t, rep.Predictions[1].PTM, back.Predictions[1].PTM, 1e-12)
	assert.Equal(t, rep.Predictions[0].Coords, back.Predictions[0].Coords)
}

func TestFromSamplesLengthMismatch(t *testing.T) {
	outs, batch, bundle := sampleReportInputs(t)
	_, err := FromSamples(outs[:1], batch, bundle)
	require.Error(t, err)
}
