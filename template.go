/*
 * template.go, part of foldcore.
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

import (
	"golang.org/x/exp/rand"

	"github.com/rgallego/foldcore/ten"
)

// TemplateEmbedder folds known related structures into the pairwise
// representation. Each template's pair features are combined with the
// current pairwise state, refined by transitions, averaged over valid
// templates and projected back.
type TemplateEmbedder struct {
	PairNorm *LayerNorm
	PairProj *Linear // dimPairwise -> dimTemplate
	FeatProj *Linear // dimTemplateFeats -> dimTemplate
	Blocks   []*Transition
	OutNorm  *LayerNorm
	Out      *Linear // dimTemplate -> dimPairwise
}

// NewTemplateEmbedder sizes the embedder from the model configuration.
func NewTemplateEmbedder(rng *rand.Rand, cfg *Config) *TemplateEmbedder {
	e := &TemplateEmbedder{
		PairNorm: NewLayerNorm(cfg.DimPairwise),
		PairProj: NewLinearNoBias(rng, cfg.DimPairwise, cfg.DimTemplate),
		FeatProj: NewLinearNoBias(rng, cfg.DimTemplateFeats, cfg.DimTemplate),
		Blocks:   make([]*Transition, cfg.TemplateDepth),
		OutNorm:  NewLayerNorm(cfg.DimTemplate),
		Out:      NewLinearNoBias(rng, cfg.DimTemplate, cfg.DimPairwise),
	}
	for i := range e.Blocks {
		e.Blocks[i] = NewTransition(rng, cfg.DimTemplate, 2)
	}
	return e
}

// Forward adds the template embedding to pairwise in place. Inputs with
// no templates, or with every template masked out, are a no-op.
func (e *TemplateEmbedder) Forward(pairwise *ten.Dense, in *AtomInput) {
	if in.Templates == nil {
		return
	}
	t, n := in.Templates.Dim(0), in.Templates.Dim(1)
	var count float64
	for ti := 0; ti < t; ti++ {
		if in.TemplateMask == nil || in.TemplateMask[ti] {
			count++
		}
	}
	if count == 0 {
		return
	}
	dt := e.PairProj.Out()
	acc := ten.New(n, n, dt)
	pbuf := make([]float64, pairwise.Dim(2))
	for ti := 0; ti < t; ti++ {
		if in.TemplateMask != nil && !in.TemplateMask[ti] {
			continue
		}
		v := ten.New(n, n, dt)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				copy(pbuf, pairwise.Vec(i, j))
				e.PairNorm.Forward(pbuf)
				pv := e.PairProj.Forward(pbuf)
				fv := e.FeatProj.Forward(in.Templates.Vec(ti, i, j))
				dst := v.Vec(i, j)
				for k := 0; k < dt; k++ {
					dst[k] = pv[k] + fv[k]
				}
			}
		}
		flat := v.Reshape(n*n, dt)
		for _, b := range e.Blocks {
			flat = b.ForwardSeq(flat)
		}
		acc.Add(flat.Reshape(n, n, dt))
	}
	acc.Scale(1 / count)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			h := acc.Vec(i, j)
			e.OutNorm.Forward(h)
			for k := range h {
				h[k] = ten.ReLU(h[k])
			}
			upd := e.Out.Forward(h)
			dst := pairwise.Vec(i, j)
			for k := range dst {
				dst[k] += upd[k]
			}
		}
	}
}
