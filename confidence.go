/*
 * confidence.go, part of foldcore.
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

// Confidence estimation: heads predicting aligned error, distance
// error, per-atom lDDT and experimental resolvability from the trunk
// representations and a predicted structure.

import (
	"golang.org/x/exp/rand"

	"github.com/rgallego/foldcore/ten"
	"github.com/rgallego/foldcore/v3"
)

// Distance bin layout shared by the confidence distance embedding and
// the distogram head, in Angstrom: bin k covers
// [DistBinMin + k*DistBinStep, DistBinMin + (k+1)*DistBinStep).
const (
	DistBinMin  = 3.25
	DistBinStep = 1.25
)

const (
	distBinMin  = DistBinMin
	distBinStep = DistBinStep
)

// ConfidenceHeadLogits bundles the raw head outputs. Pair logits are
// token-resolution, atom logits atom-resolution.
type ConfidenceHeadLogits struct {
	PAE      *ten.Dense // [n, n, numPAEBins]
	PDE      *ten.Dense // [n, n, numPDEBins]
	PLDDT    *ten.Dense // [m, numPLDDTBins]
	Resolved *ten.Dense // [m, 2]
}

// ConfidenceHead refines the trunk pairwise representation with a
// distance embedding of the predicted structure and a few pairformer
// rounds, then projects out the confidence logits.
type ConfidenceHead struct {
	DistEmbed   *Linear // numDistBins one-hot -> dimPairwise
	NumDistBins int
	Stack       *PairformerStack
	PAEProj     *Linear
	PDEProj     *Linear
	PLDDTProj   *Linear
	ResolvProj  *Linear
}

// NewConfidenceHead sizes the head from the model configuration.
func NewConfidenceHead(rng *rand.Rand, cfg *Config) *ConfidenceHead {
	return &ConfidenceHead{
		DistEmbed:   NewLinearNoBias(rng, cfg.NumDistBins, cfg.DimPairwise),
		NumDistBins: cfg.NumDistBins,
		Stack:       NewPairformerStack(rng, cfg, cfg.ConfidenceDepth),
		PAEProj:     NewLinearNoBias(rng, cfg.DimPairwise, cfg.NumPAEBins),
		PDEProj:     NewLinearNoBias(rng, cfg.DimPairwise, cfg.NumPDEBins),
		PLDDTProj:   NewLinearNoBias(rng, cfg.DimSingle, cfg.NumPLDDTBins),
		ResolvProj:  NewLinearNoBias(rng, cfg.DimSingle, 2),
	}
}

// distBin buckets a distance into the embedding's one-hot index.
func (c *ConfidenceHead) distBin(d float64) int {
	b := int((d - distBinMin) / distBinStep)
	return clampInt(b, 0, c.NumDistBins-1)
}

// Forward computes all confidence logits for one example. pred holds the
// sampled atom coordinates; token distances are measured between
// representative atoms. Tokens without a representative atom contribute
// the zero bin.
func (c *ConfidenceHead) Forward(single, pairwise *ten.Dense, pred *v3.Matrix, in *AtomInput) *ConfidenceHeadLogits {
	n := in.NumTokens()
	m := in.NumAtoms()

	pw := pairwise.Clone()
	oneHot := make([]float64, c.NumDistBins)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			ai := repAtom(in, i)
			aj := repAtom(in, j)
			bin := 0
			if ai >= 0 && aj >= 0 {
				bin = c.distBin(rowDist(pred, ai, aj))
			}
			for k := range oneHot {
				oneHot[k] = 0
			}
			oneHot[bin] = 1
			upd := c.DistEmbed.Forward(oneHot)
			dst := pw.Vec(i, j)
			for k := range dst {
				dst[k] += upd[k]
			}
		}
	}

	s := single
	mask := in.TokenMask()
	s, pw = c.Stack.Forward(s, pw, mask)

	out := &ConfidenceHeadLogits{
		PAE:      ten.New(n, n, c.PAEProj.Out()),
		PDE:      ten.New(n, n, c.PDEProj.Out()),
		PLDDT:    ten.New(m, c.PLDDTProj.Out()),
		Resolved: ten.New(m, 2),
	}
	sym := make([]float64, pw.Dim(2))
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			copy(out.PAE.Vec(i, j), c.PAEProj.Forward(pw.Vec(i, j)))
			// distance error is symmetric, so the head sees z_ij + z_ji
			zij, zji := pw.Vec(i, j), pw.Vec(j, i)
			for k := range sym {
				sym[k] = zij[k] + zji[k]
			}
			copy(out.PDE.Vec(i, j), c.PDEProj.Forward(sym))
		}
	}

	// atom-level heads read the token single representation broadcast
	// over each token's atoms
	atomSingle := RepeatInterleaveTo(s, in.MoleculeAtomLens, m)
	for i := 0; i < m; i++ {
		copy(out.PLDDT.Vec(i), c.PLDDTProj.Forward(atomSingle.Vec(i)))
		copy(out.Resolved.Vec(i), c.ResolvProj.Forward(atomSingle.Vec(i)))
	}
	return out
}

// repAtom picks the atom standing in for token i in distance
// measurements, preferring the distogram choice.
func repAtom(in *AtomInput, i int) int {
	if in.DistogramAtomIndices != nil && in.DistogramAtomIndices[i] >= 0 {
		return in.DistogramAtomIndices[i]
	}
	if in.MoleculeAtomIndices != nil {
		return in.MoleculeAtomIndices[i]
	}
	return -1
}

// DistogramHead predicts binned token-token distances from the trunk
// pairwise representation alone. Its probabilities also drive the
// contact weighting used at model selection time.
type DistogramHead struct {
	Proj *Linear // dimPairwise -> numDistogramBins
}

// NewDistogramHead sizes the head from the model configuration.
func NewDistogramHead(rng *rand.Rand, cfg *Config) *DistogramHead {
	return &DistogramHead{Proj: NewLinearNoBias(rng, cfg.DimPairwise, cfg.NumDistogramBins)}
}

// Forward returns distance logits [n, n, numDistogramBins], symmetrized
// over the pair order.
func (h *DistogramHead) Forward(pairwise *ten.Dense) *ten.Dense {
	n := pairwise.Dim(0)
	out := ten.New(n, n, h.Proj.Out())
	sym := make([]float64, pairwise.Dim(2))
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			zij, zji := pairwise.Vec(i, j), pairwise.Vec(j, i)
			for k := range sym {
				sym[k] = zij[k] + zji[k]
			}
			copy(out.Vec(i, j), h.Proj.Forward(sym))
		}
	}
	return out
}
