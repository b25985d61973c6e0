/*
 * selection.go, part of foldcore.
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
	"github.com/google/uuid"

	"github.com/rgallego/foldcore"
	"github.com/rgallego/foldcore/ten"
	"github.com/rgallego/foldcore/v3"
)

// contactCutoff separates contacting from non-contacting token pairs
// when weighting the global distance error, in Angstrom.
const contactCutoff = 8.0

// ExpectedPDE converts distance-error logits [n, n, bins] to per-pair
// expected errors in Angstrom.
func ExpectedPDE(logits *ten.Dense) *ten.Dense {
	n, bins := logits.Dim(0), logits.Dim(2)
	centers := paeBinCenters(bins)
	out := ten.New(n, n)
	probs := make([]float64, bins)
	for i := 0; i < n; i++ {
		row := out.Vec(i)
		for j := 0; j < n; j++ {
			copy(probs, logits.Vec(i, j))
			ten.Softmax(probs)
			var e float64
			for k := range probs {
				e += probs[k] * centers[k]
			}
			row[j] = e
		}
	}
	return out
}

// ExpectedPAE converts aligned-error logits [n, n, bins] to per-pair
// expected errors in Angstrom. The aligned-error and distance-error
// heads share one bin layout, so the expectation is the same.
func ExpectedPAE(logits *ten.Dense) *ten.Dense {
	return ExpectedPDE(logits)
}

// ContactProbability sums the distogram probability mass below the
// contact cutoff for every token pair.
func ContactProbability(distogramLogits *ten.Dense) *ten.Dense {
	n, bins := distogramLogits.Dim(0), distogramLogits.Dim(2)
	out := ten.New(n, n)
	probs := make([]float64, bins)
	for i := 0; i < n; i++ {
		row := out.Vec(i)
		for j := 0; j < n; j++ {
			copy(probs, distogramLogits.Vec(i, j))
			ten.Softmax(probs)
			var p float64
			for k := range probs {
				center := fold.DistBinMin + (float64(k)+0.5)*fold.DistBinStep
				if center < contactCutoff {
					p += probs[k]
				}
			}
			row[j] = p
		}
	}
	return out
}

// ComputeGPDE is the global predicted distance error: the expected PDE
// averaged over token pairs, weighted by the distogram's probability
// that the pair is in contact. Lower is better.
func ComputeGPDE(pdeLogits, distogramLogits *ten.Dense) float64 {
	pde := ExpectedPDE(pdeLogits)
	contact := ContactProbability(distogramLogits)
	n := pde.Dim(0)
	var num, den float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			w := contact.At(i, j)
			num += w * pde.At(i, j)
			den += w
		}
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// WeightedLDDT scores a candidate against the ground truth: the smooth
// lDDT complement computed per chain over that chain's atoms, averaged
// over chains.
func WeightedLDDT(pred, truth *v3.Matrix, in *fold.AtomInput) float64 {
	atomAsym := fold.RepeatInterleaveInts(in.AsymID, in.MoleculeAtomLens)
	isDNA, isRNA := nucleicFlags(in)
	chains := map[int][]int{}
	for i, a := range atomAsym {
		chains[a] = append(chains[a], i)
	}
	var sum float64
	for _, atoms := range chains {
		p := subCoords(pred, atoms)
		t := subCoords(truth, atoms)
		var dna, rna []bool
		if isDNA != nil {
			dna = subBools(isDNA, atoms)
			rna = subBools(isRNA, atoms)
		}
		sum += 1 - fold.SmoothLDDTLoss(p, t, dna, rna)
	}
	return sum / float64(len(chains))
}

func nucleicFlags(in *fold.AtomInput) (isDNA, isRNA []bool) {
	if in.IsMoleculeTypes == nil {
		return nil, nil
	}
	n := in.NumTokens()
	dna := make([]bool, n)
	rna := make([]bool, n)
	for i := 0; i < n; i++ {
		dna[i] = in.IsMoleculeTypes[i][fold.MolDNA]
		rna[i] = in.IsMoleculeTypes[i][fold.MolRNA]
	}
	return fold.RepeatInterleaveBools(dna, in.MoleculeAtomLens),
		fold.RepeatInterleaveBools(rna, in.MoleculeAtomLens)
}

func subCoords(coords *v3.Matrix, idx []int) *v3.Matrix {
	out := v3.Zeros(len(idx))
	out.SomeVecs(coords, idx)
	return out
}

func subBools(a []bool, idx []int) []bool {
	out := make([]bool, len(idx))
	for i, ix := range idx {
		out[i] = a[ix]
	}
	return out
}

// Candidate is one generated structure entered into model selection.
type Candidate struct {
	ID     uuid.UUID
	Sample *fold.SampleOutput
}

// NewCandidate tags a sample output with a fresh id.
func NewCandidate(s *fold.SampleOutput) Candidate {
	return Candidate{ID: uuid.New(), Sample: s}
}

// CandidateScore itemizes one candidate's selection scores.
type CandidateScore struct {
	ID             uuid.UUID
	GPDE           float64
	WeightedLDDT   float64
	UnresolvedRASA RASAResult
}

// SelectionResult reports the scored candidates and the winner.
type SelectionResult struct {
	Best   int
	BestID uuid.UUID
	Scores []CandidateScore
}

// ComputeModelSelectionScore scores every candidate against the ground
// truth and selects the one with the best weighted lDDT. The
// unresolved-RASA sub-score is computed only when the external
// accessibility tool is available; otherwise it is reported as
// unavailable and ignored, never failed on.
func ComputeModelSelectionScore(cands []Candidate, in *fold.AtomInput, truth *v3.Matrix, dssp *DSSP) (*SelectionResult, error) {
	if len(cands) == 0 {
		return nil, fold.ConfigErrorf("model selection needs at least one candidate")
	}
	if truth == nil {
		return nil, fold.ConfigErrorf(fold.NilCoordinates)
	}
	res := &SelectionResult{Scores: make([]CandidateScore, len(cands))}
	best := -1.0
	for c, cand := range cands {
		cs := CandidateScore{ID: cand.ID}
		cs.GPDE = ComputeGPDE(cand.Sample.Logits.PDE, cand.Sample.DistogramLogits)
		cs.WeightedLDDT = WeightedLDDT(cand.Sample.Coords, truth, in)
		cs.UnresolvedRASA = dssp.UnresolvedRASA(cand.Sample.Coords, in)
		res.Scores[c] = cs
		if cs.WeightedLDDT > best {
			best = cs.WeightedLDDT
			res.Best = c
			res.BestID = cand.ID
		}
	}
	return res, nil
}
