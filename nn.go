/*
 * nn.go, part of foldcore.
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

// Building blocks shared by the trunk, the denoiser and the confidence
// head: linear maps, layer normalization, pair-biased multi-head
// attention and gated transitions. Parameters are plain float64 tensors
// initialized from a caller-supplied source, so two models built from
// the same seed are bit-identical.

import (
	"math"

	"golang.org/x/exp/rand"

	"github.com/rgallego/foldcore/ten"
)

const lnEps = 1e-5

// negInf masks out attention logits.
var negInf = math.Inf(-1)

// Linear is a dense affine map. Bias may be nil.
type Linear struct {
	W    *ten.Dense // [out, in]
	Bias []float64
}

// NewLinear draws weights from rng, uniform in +-1/sqrt(in), with a zero
// bias.
func NewLinear(rng *rand.Rand, in, out int) *Linear {
	l := &Linear{W: ten.New(out, in), Bias: make([]float64, out)}
	scale := 1 / math.Sqrt(float64(in))
	data := l.W.Data()
	for i := range data {
		data[i] = (2*rng.Float64() - 1) * scale
	}
	return l
}

// NewLinearNoBias is NewLinear without the bias term.
func NewLinearNoBias(rng *rand.Rand, in, out int) *Linear {
	l := NewLinear(rng, in, out)
	l.Bias = nil
	return l
}

// In returns the input width.
func (l *Linear) In() int { return l.W.Dim(1) }

// Out returns the output width.
func (l *Linear) Out() int { return l.W.Dim(0) }

// Forward applies the map to a single vector.
func (l *Linear) Forward(x []float64) []float64 {
	out := make([]float64, l.Out())
	for o := range out {
		row := l.W.Vec(o)
		var s float64
		for i, v := range x {
			s += row[i] * v
		}
		if l.Bias != nil {
			s += l.Bias[o]
		}
		out[o] = s
	}
	return out
}

// ForwardSeq applies the map row-wise to a [n, in] sequence.
func (l *Linear) ForwardSeq(x *ten.Dense) *ten.Dense {
	n := x.Dim(0)
	out := ten.New(n, l.Out())
	for i := 0; i < n; i++ {
		copy(out.Vec(i), l.Forward(x.Vec(i)))
	}
	return out
}

// LayerNorm holds a learned per-channel scale and shift.
type LayerNorm struct {
	Gamma, Beta []float64
}

// NewLayerNorm returns an identity normalization (gamma 1, beta 0).
func NewLayerNorm(dim int) *LayerNorm {
	ln := &LayerNorm{Gamma: make([]float64, dim), Beta: make([]float64, dim)}
	for i := range ln.Gamma {
		ln.Gamma[i] = 1
	}
	return ln
}

// Forward normalizes x in place and returns it.
func (ln *LayerNorm) Forward(x []float64) []float64 {
	ten.LayerNorm(x, ln.Gamma, ln.Beta, lnEps)
	return x
}

// ForwardSeq normalizes every row of a copy of x.
func (ln *LayerNorm) ForwardSeq(x *ten.Dense) *ten.Dense {
	out := x.Clone()
	for i := 0; i < out.Dim(0); i++ {
		ln.Forward(out.Vec(i))
	}
	return out
}

// Transition is the SwiGLU feed-forward block: two parallel expansions,
// one gated through SiLU, projected back down.
type Transition struct {
	Norm     *LayerNorm
	Gate, Up *Linear
	Down     *Linear
}

// NewTransition builds a transition with the given expansion factor.
func NewTransition(rng *rand.Rand, dim, factor int) *Transition {
	hidden := dim * factor
	return &Transition{
		Norm: NewLayerNorm(dim),
		Gate: NewLinearNoBias(rng, dim, hidden),
		Up:   NewLinearNoBias(rng, dim, hidden),
		Down: NewLinearNoBias(rng, hidden, dim),
	}
}

// Forward returns the residual update for one vector.
func (t *Transition) Forward(x []float64) []float64 {
	h := append([]float64(nil), x...)
	t.Norm.Forward(h)
	g := t.Gate.Forward(h)
	u := t.Up.Forward(h)
	for i := range g {
		g[i] = ten.SiLU(g[i]) * u[i]
	}
	return t.Down.Forward(g)
}

// ForwardSeq adds the transition update to every row of x, returning a
// new tensor.
func (t *Transition) ForwardSeq(x *ten.Dense) *ten.Dense {
	out := x.Clone()
	for i := 0; i < out.Dim(0); i++ {
		dst := out.Vec(i)
		upd := t.Forward(x.Vec(i))
		for k := range dst {
			dst[k] += upd[k]
		}
	}
	return out
}

// Attention is multi-head self-attention with an optional additive pair
// bias per head and an output gate.
type Attention struct {
	Heads   int
	DimHead int
	Norm    *LayerNorm
	Q, K, V *Linear
	Gate    *Linear
	Out     *Linear
}

// NewAttention builds an attention block over dim-wide tokens.
func NewAttention(rng *rand.Rand, dim, heads, dimHead int) *Attention {
	inner := heads * dimHead
	return &Attention{
		Heads:   heads,
		DimHead: dimHead,
		Norm:    NewLayerNorm(dim),
		Q:       NewLinearNoBias(rng, dim, inner),
		K:       NewLinearNoBias(rng, dim, inner),
		V:       NewLinearNoBias(rng, dim, inner),
		Gate:    NewLinearNoBias(rng, dim, inner),
		Out:     NewLinearNoBias(rng, inner, dim),
	}
}

// Forward attends x [n, dim] over itself. bias, when non-nil, is
// [heads, n, n] and is added to the logits. mask marks valid tokens;
// masked-out keys never receive weight. The residual update [n, dim] is
// returned.
func (a *Attention) Forward(x *ten.Dense, bias *ten.Dense, mask []bool) *ten.Dense {
	n := x.Dim(0)
	normed := a.Norm.ForwardSeq(x)
	q := a.Q.ForwardSeq(normed)
	k := a.K.ForwardSeq(normed)
	v := a.V.ForwardSeq(normed)
	g := a.Gate.ForwardSeq(normed)

	scale := 1 / math.Sqrt(float64(a.DimHead))
	inner := a.Heads * a.DimHead
	ctx := ten.New(n, inner)
	logits := make([]float64, n)
	for h := 0; h < a.Heads; h++ {
		off := h * a.DimHead
		for i := 0; i < n; i++ {
			qi := q.Vec(i)[off : off+a.DimHead]
			for j := 0; j < n; j++ {
				if mask != nil && !mask[j] {
					logits[j] = negInf
					continue
				}
				kj := k.Vec(j)[off : off+a.DimHead]
				var s float64
				for d := 0; d < a.DimHead; d++ {
					s += qi[d] * kj[d]
				}
				s *= scale
				if bias != nil {
					s += bias.At(h, i, j)
				}
				logits[j] = s
			}
			ten.Softmax(logits)
			dst := ctx.Vec(i)[off : off+a.DimHead]
			for j := 0; j < n; j++ {
				if logits[j] == 0 {
					continue
				}
				vj := v.Vec(j)[off : off+a.DimHead]
				for d := 0; d < a.DimHead; d++ {
					dst[d] += logits[j] * vj[d]
				}
			}
		}
	}
	for i := 0; i < n; i++ {
		c := ctx.Vec(i)
		gi := g.Vec(i)
		for d := range c {
			c[d] *= ten.Sigmoid(gi[d])
		}
	}
	return a.Out.ForwardSeq(ctx)
}

// ForwardWindowed attends x [m, dim] locally: queries of window w see
// the keys of windows w and w+1. biasWindowed, when non-nil, is the
// [nw, heads, window, 2*window] layout produced from windowed pair
// features. The residual update [m, dim] is returned.
func (a *Attention) ForwardWindowed(x *ten.Dense, biasWindowed *ten.Dense, mask []bool, window int) *ten.Dense {
	m := x.Dim(0)
	nw := (m + window - 1) / window
	normed := a.Norm.ForwardSeq(x)
	q := a.Q.ForwardSeq(normed)
	k := a.K.ForwardSeq(normed)
	v := a.V.ForwardSeq(normed)
	g := a.Gate.ForwardSeq(normed)

	scale := 1 / math.Sqrt(float64(a.DimHead))
	inner := a.Heads * a.DimHead
	ctx := ten.New(m, inner)
	logits := make([]float64, 2*window)
	for w := 0; w < nw; w++ {
		for h := 0; h < a.Heads; h++ {
			off := h * a.DimHead
			for qi := 0; qi < window; qi++ {
				i := w*window + qi
				if i >= m {
					break
				}
				qv := q.Vec(i)[off : off+a.DimHead]
				for kj := 0; kj < 2*window; kj++ {
					j := w*window + kj
					if j >= m || (mask != nil && !mask[j]) {
						logits[kj] = negInf
						continue
					}
					kv := k.Vec(j)[off : off+a.DimHead]
					var s float64
					for d := 0; d < a.DimHead; d++ {
						s += qv[d] * kv[d]
					}
					s *= scale
					if biasWindowed != nil {
						s += biasWindowed.At(w, h, qi, kj)
					}
					logits[kj] = s
				}
				ten.Softmax(logits)
				dst := ctx.Vec(i)[off : off+a.DimHead]
				for kj := 0; kj < 2*window; kj++ {
					j := w*window + kj
					if j >= m || logits[kj] == 0 {
						continue
					}
					vv := v.Vec(j)[off : off+a.DimHead]
					for d := 0; d < a.DimHead; d++ {
						dst[d] += logits[kj] * vv[d]
					}
				}
			}
		}
	}
	for i := 0; i < m; i++ {
		c := ctx.Vec(i)
		gi := g.Vec(i)
		for d := range c {
			c[d] *= ten.Sigmoid(gi[d])
		}
	}
	return a.Out.ForwardSeq(ctx)
}

// PairBias projects a pairwise representation [n, n, dimPair] to additive
// attention logits [heads, n, n], after a layer norm over the pair
// channel.
type PairBias struct {
	Norm *LayerNorm
	Proj *Linear // dimPair -> heads
}

// NewPairBias builds the projection.
func NewPairBias(rng *rand.Rand, dimPair, heads int) *PairBias {
	return &PairBias{Norm: NewLayerNorm(dimPair), Proj: NewLinearNoBias(rng, dimPair, heads)}
}

// Forward computes the bias tensor.
func (p *PairBias) Forward(pairwise *ten.Dense) *ten.Dense {
	n, heads := pairwise.Dim(0), p.Proj.Out()
	out := ten.New(heads, n, n)
	buf := make([]float64, p.Proj.In())
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			copy(buf, pairwise.Vec(i, j))
			p.Norm.Forward(buf)
			b := p.Proj.Forward(buf)
			for h := 0; h < heads; h++ {
				out.Set(b[h], h, i, j)
			}
		}
	}
	return out
}

// ForwardWindowed computes bias logits [nw, heads, window, 2*window]
// from windowed pair features [nw, window, 2*window, dimPair].
func (p *PairBias) ForwardWindowed(pairwise *ten.Dense) *ten.Dense {
	nw, window, kw := pairwise.Dim(0), pairwise.Dim(1), pairwise.Dim(2)
	heads := p.Proj.Out()
	out := ten.New(nw, heads, window, kw)
	buf := make([]float64, p.Proj.In())
	for w := 0; w < nw; w++ {
		for qi := 0; qi < window; qi++ {
			for kj := 0; kj < kw; kj++ {
				copy(buf, pairwise.Vec(w, qi, kj))
				p.Norm.Forward(buf)
				b := p.Proj.Forward(buf)
				for h := 0; h < heads; h++ {
					out.Set(b[h], w, h, qi, kj)
				}
			}
		}
	}
	return out
}

// FourierEmbed embeds a scalar into random Fourier features
// cos(2*pi*(w*t + b)). Weights are drawn once at construction.
type FourierEmbed struct {
	W, B []float64
}

// NewFourierEmbed draws dim weight/phase pairs from rng.
func NewFourierEmbed(rng *rand.Rand, dim int) *FourierEmbed {
	f := &FourierEmbed{W: make([]float64, dim), B: make([]float64, dim)}
	for i := range f.W {
		f.W[i] = rng.NormFloat64()
		f.B[i] = rng.NormFloat64()
	}
	return f
}

// Forward embeds t.
func (f *FourierEmbed) Forward(t float64) []float64 {
	out := make([]float64, len(f.W))
	for i := range out {
		out[i] = math.Cos(2 * math.Pi * (f.W[i]*t + f.B[i]))
	}
	return out
}

// MemoryPolicy tells the surrounding runtime which blocks may trade
// compute for memory during training. Evaluation here is unaffected:
// results are numerically identical whatever the policy says, so the
// policy is carried as data, never branched on in the math.
type MemoryPolicy struct {
	CheckpointTrunk     bool
	CheckpointDiffusion bool
}

// DefaultMemoryPolicy keeps everything resident.
func DefaultMemoryPolicy() MemoryPolicy { return MemoryPolicy{} }
