/*
 * ranking.go, part of foldcore.
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

// Package score turns confidence logits into the scalar scores used to
// rank predicted structures: pTM-family metrics from the aligned-error
// distribution, chain and interface scores, and ground-truth-based
// model selection.
package score

import (
	"math"

	"github.com/rgallego/foldcore"
	"github.com/rgallego/foldcore/ten"
	"github.com/rgallego/foldcore/v3"
)

// Weights of the full-complex ranking formula.
const (
	weightIPTM       = 0.8
	weightPTM        = 0.2
	weightDisordered = 0.5
	penaltyClash     = 100
)

// Aligned-error bin layout: bin k covers [k*w, (k+1)*w) with center
// (k+0.5)*w.
const paeBinWidth = 0.5

func paeBinCenters(bins int) []float64 {
	out := make([]float64, bins)
	for k := range out {
		out[k] = (float64(k) + 0.5) * paeBinWidth
	}
	return out
}

// tmD0 is the TM-score normalization length scale for n scored tokens.
func tmD0(n int) float64 {
	if n < 19 {
		n = 19
	}
	return 1.24*math.Cbrt(float64(n)-15) - 1.8
}

// ComputePTM is the expectation of a TM-score kernel over the predicted
// aligned-error distribution: for every frame-bearing token i, the mean
// over scored tokens j of E[1/(1+(e/d0)^2)], maximized over i. With
// interfaceOnly, only cross-chain pairs are scored (the ipTM variant).
func ComputePTM(paeLogits *ten.Dense, asym []int, hasFrame []bool, interfaceOnly bool) float64 {
	n := paeLogits.Dim(0)
	bins := paeLogits.Dim(2)
	centers := paeBinCenters(bins)
	d0 := tmD0(n)
	kernel := make([]float64, bins)
	for k := range kernel {
		r := centers[k] / d0
		kernel[k] = 1 / (1 + r*r)
	}

	probs := make([]float64, bins)
	best := 0.0
	for i := 0; i < n; i++ {
		if hasFrame != nil && !hasFrame[i] {
			continue
		}
		var sum, count float64
		for j := 0; j < n; j++ {
			if interfaceOnly && (asym == nil || asym[i] == asym[j]) {
				continue
			}
			copy(probs, paeLogits.Vec(i, j))
			ten.Softmax(probs)
			var e float64
			for k := range probs {
				e += probs[k] * kernel[k]
			}
			sum += e
			count++
		}
		if count > 0 && sum/count > best {
			best = sum / count
		}
	}
	return best
}

// HasClash reports a steric clash between chains: it counts cross-chain
// atom pairs closer than 1.1 A and trips when they exceed 100, or half
// the atom count of the smaller chain involved.
func HasClash(coords *v3.Matrix, in *fold.AtomInput) bool {
	if coords == nil || in.AsymID == nil {
		return false
	}
	atomAsym := fold.RepeatInterleaveInts(in.AsymID, in.MoleculeAtomLens)
	m := coords.NVecs()
	chainSize := map[int]int{}
	for _, a := range atomAsym {
		chainSize[a]++
	}
	clashes := map[[2]int]int{}
	total := 0
	for i := 0; i < m; i++ {
		for j := i + 1; j < m; j++ {
			if atomAsym[i] == atomAsym[j] {
				continue
			}
			dx := coords.At(i, 0) - coords.At(j, 0)
			dy := coords.At(i, 1) - coords.At(j, 1)
			dz := coords.At(i, 2) - coords.At(j, 2)
			if dx*dx+dy*dy+dz*dz < 1.1*1.1 {
				key := [2]int{fold.MinInt(atomAsym[i], atomAsym[j]), fold.MaxInt(atomAsym[i], atomAsym[j])}
				clashes[key]++
				total++
			}
		}
	}
	if total > 100 {
		return true
	}
	for key, c := range clashes {
		smaller := fold.MinInt(chainSize[key[0]], chainSize[key[1]])
		if smaller > 0 && float64(c) > 0.5*float64(smaller) {
			return true
		}
	}
	return false
}

// ExpectedPLDDT converts pLDDT logits [m, bins] to per-atom expected
// confidence in [0, 1], bin centers evenly spaced.
func ExpectedPLDDT(logits *ten.Dense) []float64 {
	m, bins := logits.Dim(0), logits.Dim(1)
	out := make([]float64, m)
	probs := make([]float64, bins)
	for i := 0; i < m; i++ {
		copy(probs, logits.Vec(i))
		ten.Softmax(probs)
		var e float64
		for k := range probs {
			e += probs[k] * (float64(k) + 0.5) / float64(bins)
		}
		out[i] = e
	}
	return out
}

// ComputeFullComplexMetric is the headline ranking score of one
// candidate: 0.8 ipTM + 0.2 pTM + 0.5 fracDisordered, minus a hard
// penalty when the structure clashes. fracDisordered comes from the
// solvent-accessibility scorer when available, zero otherwise.
func ComputeFullComplexMetric(s *fold.SampleOutput, in *fold.AtomInput, fracDisordered float64) float64 {
	hasFrame := frameMask(in)
	iptm := ComputePTM(s.Logits.PAE, in.AsymID, hasFrame, true)
	ptm := ComputePTM(s.Logits.PAE, in.AsymID, hasFrame, false)
	score := weightIPTM*iptm + weightPTM*ptm + weightDisordered*fracDisordered
	if HasClash(s.Coords, in) {
		score -= penaltyClash
	}
	return score
}

// ComputeSingleChainMetric averages, over chains, the pTM restricted to
// each chain's tokens.
func ComputeSingleChainMetric(s *fold.SampleOutput, in *fold.AtomInput) float64 {
	hasFrame := frameMask(in)
	chains := chainTokens(in)
	var sum float64
	for _, toks := range chains {
		sum += restrictedPTM(s.Logits.PAE, toks, hasFrame)
	}
	return sum / float64(len(chains))
}

// ComputeInterfaceMetric scores the named chain interfaces: for each
// pair it computes the pTM over the union of the two chains' tokens and
// averages. A pair naming an unknown chain is a shape error.
func ComputeInterfaceMetric(s *fold.SampleOutput, in *fold.AtomInput, interfaceChains [][2]int) (float64, error) {
	hasFrame := frameMask(in)
	chains := chainTokens(in)
	var sum float64
	for _, pair := range interfaceChains {
		a, oka := chains[pair[0]]
		b, okb := chains[pair[1]]
		if !oka || !okb {
			return 0, fold.ShapeErrorf("interface names unknown chain pair (%d, %d)", pair[0], pair[1])
		}
		sum += restrictedPTM(s.Logits.PAE, append(append([]int(nil), a...), b...), hasFrame)
	}
	if len(interfaceChains) == 0 {
		return 0, nil
	}
	return sum / float64(len(interfaceChains)), nil
}

// ComputeModifiedResidueScore is the mean expected pLDDT over the atoms
// of modified tokens. Zero when the input declares no modifications.
func ComputeModifiedResidueScore(s *fold.SampleOutput, in *fold.AtomInput) float64 {
	if in.IsMoleculeMod == nil {
		return 0
	}
	modTok := make([]bool, in.NumTokens())
	any := false
	for i, mods := range in.IsMoleculeMod {
		for _, m := range mods {
			if m {
				modTok[i] = true
				any = true
				break
			}
		}
	}
	if !any {
		return 0
	}
	modAtom := fold.RepeatInterleaveBools(modTok, in.MoleculeAtomLens)
	plddt := ExpectedPLDDT(s.Logits.PLDDT)
	var sum, count float64
	for i, on := range modAtom {
		if on {
			sum += plddt[i]
			count++
		}
	}
	return sum / count
}

// restrictedPTM is ComputePTM over a token subset.
func restrictedPTM(paeLogits *ten.Dense, tokens []int, hasFrame []bool) float64 {
	bins := paeLogits.Dim(2)
	centers := paeBinCenters(bins)
	d0 := tmD0(len(tokens))
	probs := make([]float64, bins)
	best := 0.0
	for _, i := range tokens {
		if hasFrame != nil && !hasFrame[i] {
			continue
		}
		var sum float64
		for _, j := range tokens {
			copy(probs, paeLogits.Vec(i, j))
			ten.Softmax(probs)
			for k := range probs {
				r := centers[k] / d0
				sum += probs[k] / (1 + r*r)
			}
		}
		if v := sum / float64(len(tokens)); v > best {
			best = v
		}
	}
	return best
}

func frameMask(in *fold.AtomInput) []bool {
	if in.AtomIndicesForFrame == nil {
		return nil
	}
	mask := make([]bool, in.NumTokens())
	for i, f := range in.AtomIndicesForFrame {
		mask[i] = f[0] >= 0 && f[1] >= 0 && f[2] >= 0
	}
	return mask
}

func chainTokens(in *fold.AtomInput) map[int][]int {
	chains := map[int][]int{}
	for i, a := range in.AsymID {
		chains[a] = append(chains[a], i)
	}
	return chains
}

// RankingScoreBundle holds one scalar per batch element for every
// ranking sub-score.
type RankingScoreBundle struct {
	FullComplex     []float64
	SingleChain     []float64
	Interface       []float64
	ModifiedResidue []float64
	PTM             []float64
	IPTM            []float64
}

// RankBatch scores every element of a batch. interfaceChains applies to
// all elements; pass nil to skip interface scoring.
func RankBatch(outs []*fold.SampleOutput, batch *fold.BatchedAtomInput, interfaceChains [][2]int) (*RankingScoreBundle, error) {
	if len(outs) != batch.Len() {
		return nil, fold.ShapeErrorf("%d sample outputs for %d batch elements", len(outs), batch.Len())
	}
	b := batch.Len()
	bundle := &RankingScoreBundle{
		FullComplex:     make([]float64, b),
		SingleChain:     make([]float64, b),
		Interface:       make([]float64, b),
		ModifiedResidue: make([]float64, b),
		PTM:             make([]float64, b),
		IPTM:            make([]float64, b),
	}
	for e, in := range batch.Elements {
		s := outs[e]
		hasFrame := frameMask(in)
		bundle.PTM[e] = ComputePTM(s.Logits.PAE, in.AsymID, hasFrame, false)
		bundle.IPTM[e] = ComputePTM(s.Logits.PAE, in.AsymID, hasFrame, true)
		bundle.FullComplex[e] = ComputeFullComplexMetric(s, in, 0)
		bundle.SingleChain[e] = ComputeSingleChainMetric(s, in)
		bundle.ModifiedResidue[e] = ComputeModifiedResidueScore(s, in)
		if interfaceChains != nil {
			v, err := ComputeInterfaceMetric(s, in, interfaceChains)
			if err != nil {
				return nil, err
			}
			bundle.Interface[e] = v
		}
	}
	return bundle, nil
}
