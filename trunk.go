/*
 * trunk.go, part of foldcore.
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

// The representation trunk: token single and pairwise representations
// refined by a stack of pairformer blocks, re-fed to themselves across
// recycling iterations.

import (
	"golang.org/x/exp/rand"

	"github.com/rgallego/foldcore/ten"
)

// RelPosEncoding encodes clipped relative residue offsets plus chain and
// entity identity into the pairwise representation.
type RelPosEncoding struct {
	Bins int
	Proj *Linear
}

// NewRelPosEncoding builds the encoding with offsets clipped to +-bins.
func NewRelPosEncoding(rng *rand.Rand, bins, dimPairwise int) *RelPosEncoding {
	// one-hot offset buckets, one overflow bucket for cross-chain pairs,
	// plus same-chain and same-entity flags
	in := 2*bins + 2 + 2
	return &RelPosEncoding{Bins: bins, Proj: NewLinearNoBias(rng, in, dimPairwise)}
}

// Forward adds the encoded pair features of in to pairwise in place.
func (r *RelPosEncoding) Forward(pairwise *ten.Dense, in *AtomInput) {
	n := in.NumTokens()
	width := 2*r.Bins + 2 + 2
	feat := make([]float64, width)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			for k := range feat {
				feat[k] = 0
			}
			sameChain := in.AsymID == nil || in.AsymID[i] == in.AsymID[j]
			if sameChain {
				d := 0
				if in.ResidueIndex != nil {
					d = in.ResidueIndex[j] - in.ResidueIndex[i]
				}
				d = clampInt(d, -r.Bins, r.Bins)
				feat[d+r.Bins] = 1
				feat[2*r.Bins+2] = 1
			} else {
				feat[2*r.Bins+1] = 1 // overflow bucket
			}
			if in.EntityID == nil || in.EntityID[i] == in.EntityID[j] {
				feat[2*r.Bins+3] = 1
			}
			enc := r.Proj.Forward(feat)
			dst := pairwise.Vec(i, j)
			for k := range dst {
				dst[k] += enc[k]
			}
		}
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// TriangleMult is the multiplicative triangle update over the pairwise
// representation. Outgoing mixes over edges (i,k)*(j,k), incoming over
// (k,i)*(k,j).
type TriangleMult struct {
	Outgoing     bool
	Norm         *LayerNorm
	ProjA, ProjB *Linear
	GateA, GateB *Linear
	OutNorm      *LayerNorm
	OutProj      *Linear
	OutGate      *Linear
}

// NewTriangleMult builds the update with the given hidden width.
func NewTriangleMult(rng *rand.Rand, dimPairwise, hidden int, outgoing bool) *TriangleMult {
	return &TriangleMult{
		Outgoing: outgoing,
		Norm:     NewLayerNorm(dimPairwise),
		ProjA:    NewLinearNoBias(rng, dimPairwise, hidden),
		ProjB:    NewLinearNoBias(rng, dimPairwise, hidden),
		GateA:    NewLinearNoBias(rng, dimPairwise, hidden),
		GateB:    NewLinearNoBias(rng, dimPairwise, hidden),
		OutNorm:  NewLayerNorm(hidden),
		OutProj:  NewLinearNoBias(rng, hidden, dimPairwise),
		OutGate:  NewLinearNoBias(rng, dimPairwise, dimPairwise),
	}
}

// Forward returns the residual update [n, n, dimPairwise].
func (t *TriangleMult) Forward(pairwise *ten.Dense, mask []bool) *ten.Dense {
	n, d := pairwise.Dim(0), pairwise.Dim(2)
	hidden := t.ProjA.Out()
	a := ten.New(n, n, hidden)
	b := ten.New(n, n, hidden)
	normed := make([]float64, d)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			copy(normed, pairwise.Vec(i, j))
			t.Norm.Forward(normed)
			pa := t.ProjA.Forward(normed)
			ga := t.GateA.Forward(normed)
			pb := t.ProjB.Forward(normed)
			gb := t.GateB.Forward(normed)
			valid := mask == nil || (mask[i] && mask[j])
			av, bv := a.Vec(i, j), b.Vec(i, j)
			for k := 0; k < hidden; k++ {
				if valid {
					av[k] = ten.Sigmoid(ga[k]) * pa[k]
					bv[k] = ten.Sigmoid(gb[k]) * pb[k]
				}
			}
		}
	}
	out := ten.New(n, n, d)
	acc := make([]float64, hidden)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			for k := range acc {
				acc[k] = 0
			}
			for m := 0; m < n; m++ {
				var am, bm []float64
				if t.Outgoing {
					am, bm = a.Vec(i, m), b.Vec(j, m)
				} else {
					am, bm = a.Vec(m, i), b.Vec(m, j)
				}
				for k := 0; k < hidden; k++ {
					acc[k] += am[k] * bm[k]
				}
			}
			t.OutNorm.Forward(acc)
			upd := t.OutProj.Forward(acc)
			copy(normed, pairwise.Vec(i, j))
			t.Norm.Forward(normed)
			gate := t.OutGate.Forward(normed)
			dst := out.Vec(i, j)
			for k := 0; k < d; k++ {
				dst[k] = ten.Sigmoid(gate[k]) * upd[k]
			}
		}
	}
	return out
}

// PairformerBlock co-updates the single and pairwise representations:
// two triangle updates and a transition on the pairwise side, pair-biased
// attention and a transition on the single side.
type PairformerBlock struct {
	TriOut, TriIn *TriangleMult
	PairTrans     *Transition
	Bias          *PairBias
	Attn          *Attention
	SingleTrans   *Transition
}

// NewPairformerBlock sizes a block from the model configuration.
func NewPairformerBlock(rng *rand.Rand, cfg *Config) *PairformerBlock {
	return &PairformerBlock{
		TriOut:      NewTriangleMult(rng, cfg.DimPairwise, cfg.DimPairwise, true),
		TriIn:       NewTriangleMult(rng, cfg.DimPairwise, cfg.DimPairwise, false),
		PairTrans:   NewTransition(rng, cfg.DimPairwise, 2),
		Bias:        NewPairBias(rng, cfg.DimPairwise, cfg.PairformerHeads),
		Attn:        NewAttention(rng, cfg.DimSingle, cfg.PairformerHeads, cfg.DimSingle/cfg.PairformerHeads),
		SingleTrans: NewTransition(rng, cfg.DimSingle, 4),
	}
}

// Forward updates both representations, returning fresh tensors.
func (b *PairformerBlock) Forward(single, pairwise *ten.Dense, mask []bool) (*ten.Dense, *ten.Dense) {
	n := pairwise.Dim(0)
	pw := pairwise.Clone()
	pw.Add(b.TriOut.Forward(pw, mask))
	pw.Add(b.TriIn.Forward(pw, mask))
	// transitions operate row-wise, so run the pair transition on the
	// flattened [n*n, d] view and restore the shape
	d := pw.Dim(2)
	pw = b.PairTrans.ForwardSeq(pw.Reshape(n*n, d)).Reshape(n, n, d)

	bias := b.Bias.Forward(pw)
	s := single.Clone()
	s.Add(b.Attn.Forward(s, bias, mask))
	s = b.SingleTrans.ForwardSeq(s)
	return s, pw
}

// PairformerStack is a sequence of pairformer blocks.
type PairformerStack struct {
	Blocks []*PairformerBlock
}

// NewPairformerStack builds depth blocks.
func NewPairformerStack(rng *rand.Rand, cfg *Config, depth int) *PairformerStack {
	s := &PairformerStack{Blocks: make([]*PairformerBlock, depth)}
	for i := range s.Blocks {
		s.Blocks[i] = NewPairformerBlock(rng, cfg)
	}
	return s
}

// Forward threads the representations through every block.
func (s *PairformerStack) Forward(single, pairwise *ten.Dense, mask []bool) (*ten.Dense, *ten.Dense) {
	for _, b := range s.Blocks {
		single, pairwise = b.Forward(single, pairwise, mask)
	}
	return single, pairwise
}

// Recycler folds the previous cycle's representations back into the
// initial embeddings. The previous state is read-only here; callers pass
// value copies so no gradient relationship survives across cycles.
type Recycler struct {
	SingleNorm *LayerNorm
	SingleProj *Linear
	PairNorm   *LayerNorm
	PairProj   *Linear
}

// NewRecycler sizes the recycler from the model configuration.
func NewRecycler(rng *rand.Rand, cfg *Config) *Recycler {
	return &Recycler{
		SingleNorm: NewLayerNorm(cfg.DimSingle),
		SingleProj: NewLinearNoBias(rng, cfg.DimSingle, cfg.DimSingle),
		PairNorm:   NewLayerNorm(cfg.DimPairwise),
		PairProj:   NewLinearNoBias(rng, cfg.DimPairwise, cfg.DimPairwise),
	}
}

// Forward adds the projected previous state into the initial embeddings
// in place. Nil previous state (the first cycle) contributes nothing.
func (r *Recycler) Forward(initSingle, initPairwise, prevSingle, prevPairwise *ten.Dense) {
	if prevSingle == nil || prevPairwise == nil {
		return
	}
	n := initSingle.Dim(0)
	buf := make([]float64, r.SingleProj.In())
	for i := 0; i < n; i++ {
		copy(buf, prevSingle.Vec(i))
		r.SingleNorm.Forward(buf)
		upd := r.SingleProj.Forward(buf)
		dst := initSingle.Vec(i)
		for k := range dst {
			dst[k] += upd[k]
		}
	}
	pbuf := make([]float64, r.PairProj.In())
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			copy(pbuf, prevPairwise.Vec(i, j))
			r.PairNorm.Forward(pbuf)
			upd := r.PairProj.Forward(pbuf)
			dst := initPairwise.Vec(i, j)
			for k := range dst {
				dst[k] += upd[k]
			}
		}
	}
}
