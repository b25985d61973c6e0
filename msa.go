/*
 * msa.go, part of foldcore.
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

// The MSA module communicates evolutionary covariation into the pairwise
// representation: each block pushes an outer-product mean of the aligned
// sequences into the pair channel and pulls pair information back into
// the alignment by pair-weighted averaging.

import (
	"golang.org/x/exp/rand"

	"github.com/rgallego/foldcore/ten"
)

// OuterProductMean maps an alignment [s, n, dimMSA] to a pairwise update
// [n, n, dimPairwise] through a low-rank outer product averaged over
// sequences.
type OuterProductMean struct {
	Norm         *LayerNorm
	ProjA, ProjB *Linear // dimMSA -> hidden
	Out          *Linear // hidden*hidden -> dimPairwise
}

// NewOuterProductMean builds the block.
func NewOuterProductMean(rng *rand.Rand, dimMSA, hidden, dimPairwise int) *OuterProductMean {
	return &OuterProductMean{
		Norm:  NewLayerNorm(dimMSA),
		ProjA: NewLinearNoBias(rng, dimMSA, hidden),
		ProjB: NewLinearNoBias(rng, dimMSA, hidden),
		Out:   NewLinear(rng, hidden*hidden, dimPairwise),
	}
}

// Forward adds the update to pairwise in place. msaMask marks valid
// sequences; a fully masked alignment contributes only the output bias.
func (o *OuterProductMean) Forward(pairwise, msa *ten.Dense, msaMask []bool) {
	s, n := msa.Dim(0), msa.Dim(1)
	hidden := o.ProjA.Out()
	a := ten.New(s, n, hidden)
	b := ten.New(s, n, hidden)
	tmp := make([]float64, msa.Dim(2))
	for si := 0; si < s; si++ {
		for i := 0; i < n; i++ {
			copy(tmp, msa.Vec(si, i))
			o.Norm.Forward(tmp)
			copy(a.Vec(si, i), o.ProjA.Forward(tmp))
			copy(b.Vec(si, i), o.ProjB.Forward(tmp))
		}
	}
	var count float64
	for si := 0; si < s; si++ {
		if msaMask == nil || msaMask[si] {
			count++
		}
	}
	outer := make([]float64, hidden*hidden)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			for k := range outer {
				outer[k] = 0
			}
			for si := 0; si < s; si++ {
				if msaMask != nil && !msaMask[si] {
					continue
				}
				av, bv := a.Vec(si, i), b.Vec(si, j)
				for p := 0; p < hidden; p++ {
					for q := 0; q < hidden; q++ {
						outer[p*hidden+q] += av[p] * bv[q]
					}
				}
			}
			if count > 0 {
				for k := range outer {
					outer[k] /= count
				}
			}
			upd := o.Out.Forward(outer)
			dst := pairwise.Vec(i, j)
			for k := range dst {
				dst[k] += upd[k]
			}
		}
	}
}

// PairWeightedAveraging updates the alignment from the pairwise
// representation: token i of every sequence receives a value average
// weighted by softmaxed pair logits over tokens j.
type PairWeightedAveraging struct {
	Heads    int
	DimHead  int
	MSANorm  *LayerNorm
	PairNorm *LayerNorm
	Value    *Linear // dimMSA -> heads*dimHead
	Logit    *Linear // dimPairwise -> heads
	Gate     *Linear // dimMSA -> heads*dimHead
	Out      *Linear // heads*dimHead -> dimMSA
}

// NewPairWeightedAveraging builds the block.
func NewPairWeightedAveraging(rng *rand.Rand, dimMSA, dimPairwise, heads, dimHead int) *PairWeightedAveraging {
	inner := heads * dimHead
	return &PairWeightedAveraging{
		Heads:    heads,
		DimHead:  dimHead,
		MSANorm:  NewLayerNorm(dimMSA),
		PairNorm: NewLayerNorm(dimPairwise),
		Value:    NewLinearNoBias(rng, dimMSA, inner),
		Logit:    NewLinearNoBias(rng, dimPairwise, heads),
		Gate:     NewLinearNoBias(rng, dimMSA, inner),
		Out:      NewLinearNoBias(rng, inner, dimMSA),
	}
}

// Forward returns the residual update with the same shape as msa.
func (p *PairWeightedAveraging) Forward(msa, pairwise *ten.Dense, mask []bool) *ten.Dense {
	s, n, dm := msa.Dim(0), msa.Dim(1), msa.Dim(2)
	inner := p.Heads * p.DimHead

	// pair logits are shared by all sequences
	logits := ten.New(p.Heads, n, n)
	pbuf := make([]float64, pairwise.Dim(2))
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			copy(pbuf, pairwise.Vec(i, j))
			p.PairNorm.Forward(pbuf)
			l := p.Logit.Forward(pbuf)
			for h := 0; h < p.Heads; h++ {
				if mask != nil && !mask[j] {
					logits.Set(negInf, h, i, j)
				} else {
					logits.Set(l[h], h, i, j)
				}
			}
		}
	}
	weights := ten.New(p.Heads, n, n)
	for h := 0; h < p.Heads; h++ {
		for i := 0; i < n; i++ {
			row := make([]float64, n)
			copy(row, logits.Vec(h, i))
			ten.Softmax(row)
			copy(weights.Vec(h, i), row)
		}
	}

	out := ten.New(s, n, dm)
	mbuf := make([]float64, dm)
	for si := 0; si < s; si++ {
		vals := ten.New(n, inner)
		gates := ten.New(n, inner)
		for i := 0; i < n; i++ {
			copy(mbuf, msa.Vec(si, i))
			p.MSANorm.Forward(mbuf)
			copy(vals.Vec(i), p.Value.Forward(mbuf))
			copy(gates.Vec(i), p.Gate.Forward(mbuf))
		}
		ctx := ten.New(n, inner)
		for h := 0; h < p.Heads; h++ {
			off := h * p.DimHead
			for i := 0; i < n; i++ {
				w := weights.Vec(h, i)
				dst := ctx.Vec(i)[off : off+p.DimHead]
				for j := 0; j < n; j++ {
					if w[j] == 0 {
						continue
					}
					vj := vals.Vec(j)[off : off+p.DimHead]
					for d := 0; d < p.DimHead; d++ {
						dst[d] += w[j] * vj[d]
					}
				}
			}
		}
		for i := 0; i < n; i++ {
			c := ctx.Vec(i)
			g := gates.Vec(i)
			for d := range c {
				c[d] *= ten.Sigmoid(g[d])
			}
			copy(out.Vec(si, i), p.Out.Forward(c))
		}
	}
	return out
}

// MSABlock is one round of communication between alignment and pair
// channel.
type MSABlock struct {
	Outer     *OuterProductMean
	Averaging *PairWeightedAveraging
	MSATrans  *Transition
	PairTrans *Transition
}

// MSAModule embeds the alignment and runs a stack of MSA blocks, leaving
// its result in the pairwise representation.
type MSAModule struct {
	Proj     *Linear // dimMSAInput + dimAdditionalMSAFeats -> dimMSA
	SingleIn *Linear // dimSingle -> dimMSA
	Blocks   []*MSABlock
}

// NewMSAModule sizes the module from the model configuration.
func NewMSAModule(rng *rand.Rand, cfg *Config) *MSAModule {
	m := &MSAModule{
		Proj:     NewLinearNoBias(rng, cfg.DimMSAInput+cfg.DimAdditionalMSAFeats, cfg.DimMSA),
		SingleIn: NewLinearNoBias(rng, cfg.DimSingle, cfg.DimMSA),
		Blocks:   make([]*MSABlock, cfg.MSADepth),
	}
	for i := range m.Blocks {
		m.Blocks[i] = &MSABlock{
			Outer:     NewOuterProductMean(rng, cfg.DimMSA, cfg.DimOuterHidden, cfg.DimPairwise),
			Averaging: NewPairWeightedAveraging(rng, cfg.DimMSA, cfg.DimPairwise, cfg.MSAHeads, cfg.DimMSA/cfg.MSAHeads),
			MSATrans:  NewTransition(rng, cfg.DimMSA, 4),
			PairTrans: NewTransition(rng, cfg.DimPairwise, 2),
		}
	}
	return m
}

// Forward updates pairwise in place from the alignment features of in.
// Inputs with no MSA are a no-op.
func (m *MSAModule) Forward(pairwise, single *ten.Dense, in *AtomInput, mask []bool) {
	if in.MSA == nil {
		return
	}
	s, n := in.MSA.Dim(0), in.MSA.Dim(1)
	dm := m.Proj.Out()
	msa := ten.New(s, n, dm)
	feat := make([]float64, m.Proj.In())
	for si := 0; si < s; si++ {
		for i := 0; i < n; i++ {
			for k := range feat {
				feat[k] = 0
			}
			copy(feat, in.MSA.Vec(si, i))
			if in.AdditionalMSAFeats != nil {
				copy(feat[in.MSA.Dim(2):], in.AdditionalMSAFeats.Vec(si, i))
			}
			row := msa.Vec(si, i)
			copy(row, m.Proj.Forward(feat))
			// the single representation seeds every alignment row
			su := m.SingleIn.Forward(single.Vec(i))
			for k := range row {
				row[k] += su[k]
			}
		}
	}
	n2 := pairwise.Dim(0) * pairwise.Dim(1)
	dp := pairwise.Dim(2)
	for _, b := range m.Blocks {
		b.Outer.Forward(pairwise, msa, in.MSAMask)
		msa.Add(b.Averaging.Forward(msa, pairwise, mask))
		msa = b.MSATrans.ForwardSeq(msa.Reshape(s*n, dm)).Reshape(s, n, dm)
		pairwise.CopyFrom(b.PairTrans.ForwardSeq(pairwise.Reshape(n2, dp)).Reshape(pairwise.Dim(0), pairwise.Dim(1), dp))
	}
}
