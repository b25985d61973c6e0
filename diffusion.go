/*
 * diffusion.go, part of foldcore.
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

// The denoiser: a conditional network mapping noisy atom coordinates at
// a given noise level back to clean coordinates, conditioned on the
// trunk's token representations. Atoms attend locally in fixed windows,
// tokens attend globally with a pairwise bias, and the two levels are
// tied by the run-length token->atom map.

import (
	"math"

	"golang.org/x/exp/rand"

	"github.com/rgallego/foldcore/ten"
	"github.com/rgallego/foldcore/v3"
)

// atomBlock is one local-attention round at the atom level.
type atomBlock struct {
	Attn  *Attention
	Trans *Transition
}

// tokenBlock is one global-attention round at the token level.
type tokenBlock struct {
	Attn  *Attention
	Trans *Transition
}

// DiffusionModule is the denoiser network plus its EDM preconditioning.
type DiffusionModule struct {
	cfg *Config

	// conditioning: trunk single plus the embedded noise level, projected
	// to both the token and the atom width
	SingleCond *Linear
	NoiseEmbed *FourierEmbed
	NoiseProj  *Linear
	CondToAtom *Linear

	// atom encoder
	AtomFeatProj  *Linear
	PosProj       *Linear
	AtomEmbed     *ten.Dense // [numAtomEmbeds, dimAtom], nil when disabled
	AtompairEmbed *ten.Dense // [numAtompairEmbeds, dimAtompairInputs], nil when disabled
	AtomPairBias  *PairBias
	AtomEnc       []*atomBlock
	AtomToToken   *Linear

	// token transformer
	TokenBias   *PairBias
	TokenBlocks []*tokenBlock

	// atom decoder
	TokenToAtom *Linear
	AtomDec     []*atomBlock
	OutNorm     *LayerNorm
	PosOut      *Linear
}

// NewDiffusionModule sizes the denoiser from the model configuration.
func NewDiffusionModule(rng *rand.Rand, cfg *Config) *DiffusionModule {
	dm := &DiffusionModule{
		cfg:          cfg,
		SingleCond:   NewLinearNoBias(rng, cfg.DimSingle, cfg.DimToken),
		NoiseEmbed:   NewFourierEmbed(rng, cfg.DimFourier),
		NoiseProj:    NewLinearNoBias(rng, cfg.DimFourier, cfg.DimToken),
		CondToAtom:   NewLinearNoBias(rng, cfg.DimToken, cfg.DimAtom),
		AtomFeatProj: NewLinearNoBias(rng, cfg.DimAtomInputs, cfg.DimAtom),
		PosProj:      NewLinearNoBias(rng, 3, cfg.DimAtom),
		AtomPairBias: NewPairBias(rng, cfg.DimAtompairInputs, cfg.AtomHeads),
		AtomToToken:  NewLinearNoBias(rng, cfg.DimAtom, cfg.DimToken),
		TokenBias:    NewPairBias(rng, cfg.DimPairwise, cfg.TokenHeads),
		TokenToAtom:  NewLinearNoBias(rng, cfg.DimToken, cfg.DimAtom),
		OutNorm:      NewLayerNorm(cfg.DimAtom),
		PosOut:       NewLinearNoBias(rng, cfg.DimAtom, 3),
	}
	if cfg.NumAtomEmbeds > 0 {
		dm.AtomEmbed = randEmbedTable(rng, cfg.NumAtomEmbeds, cfg.DimAtom)
	}
	if cfg.NumAtompairEmbeds > 0 {
		dm.AtompairEmbed = randEmbedTable(rng, cfg.NumAtompairEmbeds, cfg.DimAtompairInputs)
	}
	for i := 0; i < cfg.AtomEncoderDepth; i++ {
		dm.AtomEnc = append(dm.AtomEnc, &atomBlock{
			Attn:  NewAttention(rng, cfg.DimAtom, cfg.AtomHeads, cfg.DimAtom/cfg.AtomHeads),
			Trans: NewTransition(rng, cfg.DimAtom, 2),
		})
	}
	for i := 0; i < cfg.TokenTransformerDepth; i++ {
		dm.TokenBlocks = append(dm.TokenBlocks, &tokenBlock{
			Attn:  NewAttention(rng, cfg.DimToken, cfg.TokenHeads, cfg.DimToken/cfg.TokenHeads),
			Trans: NewTransition(rng, cfg.DimToken, 2),
		})
	}
	for i := 0; i < cfg.AtomDecoderDepth; i++ {
		dm.AtomDec = append(dm.AtomDec, &atomBlock{
			Attn:  NewAttention(rng, cfg.DimAtom, cfg.AtomHeads, cfg.DimAtom/cfg.AtomHeads),
			Trans: NewTransition(rng, cfg.DimAtom, 2),
		})
	}
	return dm
}

// randEmbedTable draws a [rows, dim] embedding table scaled to unit
// output variance.
func randEmbedTable(rng *rand.Rand, rows, dim int) *ten.Dense {
	t := ten.New(rows, dim)
	scale := 1 / math.Sqrt(float64(dim))
	data := t.Data()
	for i := range data {
		data[i] = rng.NormFloat64() * scale
	}
	return t
}

// addAtompairEmbeds folds the bond-type embedding of every real atom
// pair into the windowed pair features [nw, window, 2*window, d].
func (dm *DiffusionModule) addAtompairEmbeds(windowed, ids *ten.Dense, m int) {
	nw, win, kw := windowed.Dim(0), windowed.Dim(1), windowed.Dim(2)
	rows := dm.AtompairEmbed.Dim(0)
	for w := 0; w < nw; w++ {
		for qi := 0; qi < win; qi++ {
			i := w*win + qi
			if i >= m {
				break
			}
			for kj := 0; kj < kw; kj++ {
				j := w*win + kj
				if j >= m {
					break
				}
				emb := dm.AtompairEmbed.Vec(clampInt(int(ids.At(i, j)), 0, rows-1))
				dst := windowed.Vec(w, qi, kj)
				for k := range dst {
					dst[k] += emb[k]
				}
			}
		}
	}
}

// gateCrossParent forbids attention between atoms of different parent
// molecules by pushing the corresponding bias entries to -Inf.
func gateCrossParent(bias *ten.Dense, parents []int) {
	m := len(parents)
	nw, heads, win, kw := bias.Dim(0), bias.Dim(1), bias.Dim(2), bias.Dim(3)
	for w := 0; w < nw; w++ {
		for qi := 0; qi < win; qi++ {
			i := w*win + qi
			if i >= m {
				break
			}
			for kj := 0; kj < kw; kj++ {
				j := w*win + kj
				if j >= m {
					break
				}
				if parents[i] != parents[j] {
					for h := 0; h < heads; h++ {
						bias.Set(negInf, w, h, qi, kj)
					}
				}
			}
		}
	}
}

// EDM preconditioning coefficients, parameterized by the data scale.

func (dm *DiffusionModule) cSkip(sigma float64) float64 {
	sd := dm.cfg.SigmaData
	return sd * sd / (sigma*sigma + sd*sd)
}

func (dm *DiffusionModule) cOut(sigma float64) float64 {
	sd := dm.cfg.SigmaData
	return sigma * sd / math.Sqrt(sigma*sigma+sd*sd)
}

func (dm *DiffusionModule) cIn(sigma float64) float64 {
	sd := dm.cfg.SigmaData
	return 1 / math.Sqrt(sigma*sigma+sd*sd)
}

func (dm *DiffusionModule) cNoise(sigma float64) float64 {
	return math.Log(sigma) / 4
}

// Denoise maps noisy coordinates at noise level sigma to a clean
// estimate: the raw network sees cIn-scaled inputs and its output is
// blended with the skip path, so the estimate stays well-scaled across
// the whole sigma range.
func (dm *DiffusionModule) Denoise(noisy *v3.Matrix, sigma float64, trunk *TrunkOutput, in *AtomInput) *v3.Matrix {
	m := noisy.NVecs()
	scaled := v3.Zeros(m)
	scaled.Copy(noisy.Dense)
	scaled.Scale(dm.cIn(sigma), scaled.Dense)

	update := dm.network(scaled, dm.cNoise(sigma), trunk, in)

	out := v3.Zeros(m)
	cs, co := dm.cSkip(sigma), dm.cOut(sigma)
	for i := 0; i < m; i++ {
		for k := 0; k < 3; k++ {
			out.Set(i, k, cs*noisy.At(i, k)+co*update.At(i, k))
		}
	}
	return out
}

// network is the raw denoiser. scaled holds cIn-scaled coordinates and
// cnoise the log-sigma conditioning scalar.
func (dm *DiffusionModule) network(scaled *v3.Matrix, cnoise float64, trunk *TrunkOutput, in *AtomInput) *v3.Matrix {
	cfg := dm.cfg
	m := scaled.NVecs()
	n := in.NumTokens()
	lens := in.MoleculeAtomLens
	window := cfg.AtomWindow

	// token-level conditioning: trunk single plus the noise embedding
	cond := dm.SingleCond.ForwardSeq(trunk.Single)
	noiseVec := dm.NoiseProj.Forward(dm.NoiseEmbed.Forward(cnoise))
	for i := 0; i < n; i++ {
		dst := cond.Vec(i)
		for k := range dst {
			dst[k] += noiseVec[k]
		}
	}

	// atom encoder
	atoms := dm.AtomFeatProj.ForwardSeq(in.AtomFeats)
	pos := make([]float64, 3)
	for i := 0; i < m; i++ {
		pos[0], pos[1], pos[2] = scaled.At(i, 0), scaled.At(i, 1), scaled.At(i, 2)
		pu := dm.PosProj.Forward(pos)
		dst := atoms.Vec(i)
		for k := range dst {
			dst[k] += pu[k]
		}
	}
	if dm.AtomEmbed != nil && in.AtomIDs != nil {
		rows := dm.AtomEmbed.Dim(0)
		for i := 0; i < m; i++ {
			emb := dm.AtomEmbed.Vec(clampInt(in.AtomIDs[i], 0, rows-1))
			dst := atoms.Vec(i)
			for k := range dst {
				dst[k] += emb[k]
			}
		}
	}
	condAtoms := RepeatInterleaveTo(dm.CondToAtom.ForwardSeq(cond), lens, m)
	atoms.Add(condAtoms)

	var atomBias *ten.Dense
	if in.AtompairFeats != nil {
		windowed := in.AtompairFeats
		if windowed.Rank() == 3 {
			windowed = FullPairwiseToWindowed(windowed, window)
		}
		if dm.AtompairEmbed != nil && in.AtompairIDs != nil {
			windowed = windowed.Clone()
			dm.addAtompairEmbeds(windowed, in.AtompairIDs, m)
		}
		atomBias = dm.AtomPairBias.ForwardWindowed(windowed)
	}
	if in.AtomParentIDs != nil {
		if atomBias == nil {
			nw := (m + window - 1) / window
			atomBias = ten.New(nw, cfg.AtomHeads, window, 2*window)
		}
		gateCrossParent(atomBias, in.AtomParentIDs)
	}
	for _, b := range dm.AtomEnc {
		atoms.Add(b.Attn.ForwardWindowed(atoms, atomBias, in.AtomMask, window))
		atoms = b.Trans.ForwardSeq(atoms)
	}

	// token transformer
	tokens := dm.AtomToToken.ForwardSeq(MeanPoolWithLens(atoms, lens))
	tokens.Add(cond)
	tokenBias := dm.TokenBias.Forward(trunk.Pairwise)
	mask := in.TokenMask()
	for _, b := range dm.TokenBlocks {
		tokens.Add(b.Attn.Forward(tokens, tokenBias, mask))
		tokens = b.Trans.ForwardSeq(tokens)
	}

	// atom decoder
	atoms.Add(RepeatInterleaveTo(dm.TokenToAtom.ForwardSeq(tokens), lens, m))
	for _, b := range dm.AtomDec {
		atoms.Add(b.Attn.ForwardWindowed(atoms, atomBias, in.AtomMask, window))
		atoms = b.Trans.ForwardSeq(atoms)
	}

	out := v3.Zeros(m)
	for i := 0; i < m; i++ {
		h := append([]float64(nil), atoms.Vec(i)...)
		dm.OutNorm.Forward(h)
		p := dm.PosOut.Forward(h)
		out.Set(i, 0, p[0])
		out.Set(i, 1, p[1])
		out.Set(i, 2, p[2])
	}
	return out
}
