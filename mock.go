/*
 * mock.go, part of foldcore.
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
	"github.com/rgallego/foldcore/v3"
)

// MockOptions controls the synthetic example generator.
type MockOptions struct {
	Chains           int
	TokensPerChain   int
	MaxAtomsPerToken int
	NumMSASeqs       int
	NumTemplates     int
	WithCoords       bool
	WithEmbedIDs     bool // atom/bond ids, parent ids and modification flags
}

// DefaultMockOptions gives a two-chain protein-sized toy example.
func DefaultMockOptions() MockOptions {
	return MockOptions{
		Chains:           2,
		TokensPerChain:   8,
		MaxAtomsPerToken: 6,
		WithCoords:       true,
	}
}

// MockAtomInput generates a random but shape-consistent example, sized
// for cfg. Feature values are standard normal, coordinates a random
// walk, so downstream numerics behave like real data without any data
// files.
func MockAtomInput(rng *rand.Rand, cfg *Config, opts MockOptions) *AtomInput {
	var lens, molIDs, asym, entity, resIdx []int
	for ci := 0; ci < opts.Chains; ci++ {
		for ri := 0; ri < opts.TokensPerChain; ri++ {
			lens = append(lens, 3+rng.Intn(opts.MaxAtomsPerToken-2))
			molIDs = append(molIDs, rng.Intn(20))
			asym = append(asym, ci)
			entity = append(entity, ci)
			resIdx = append(resIdx, ri)
		}
	}
	n := len(lens)
	m := sumInts(lens)

	feats := ten.New(m, cfg.DimAtomInputs)
	fillNorm(rng, feats.Data())
	pairFeats := ten.New(m, m, cfg.DimAtompairInputs)
	fillNorm(rng, pairFeats.Data())

	isTypes := make([][]bool, n)
	for i := range isTypes {
		isTypes[i] = make([]bool, NumMoleculeTypes)
		isTypes[i][MolProtein] = true
	}

	offsets := ExclusiveCumsum(lens)
	molAtomIdx := make([]int, n)
	frameIdx := make([][3]int, n)
	for i, l := range lens {
		molAtomIdx[i] = offsets[i] + 1
		frameIdx[i] = [3]int{offsets[i], offsets[i] + 1, offsets[i] + minInt(2, l-1)}
	}

	in := &AtomInput{
		AtomFeats:           feats,
		AtompairFeats:       pairFeats,
		AtomMask:            trueMask(m),
		MoleculeAtomLens:    lens,
		MoleculeIDs:         molIDs,
		AsymID:              asym,
		EntityID:            entity,
		ResidueIndex:        resIdx,
		IsMoleculeTypes:     isTypes,
		MoleculeAtomIndices: molAtomIdx,
		AtomIndicesForFrame: frameIdx,
	}

	if opts.WithCoords {
		pos := v3.Zeros(m)
		// random walk keeps neighboring atoms a few Angstrom apart
		var x, y, z float64
		for i := 0; i < m; i++ {
			x += rng.NormFloat64() * 1.5
			y += rng.NormFloat64() * 1.5
			z += rng.NormFloat64() * 1.5
			pos.Set(i, 0, x)
			pos.Set(i, 1, y)
			pos.Set(i, 2, z)
		}
		in.AtomPos = pos
		labels := make([]int, m)
		for i := range labels {
			labels[i] = rng.Intn(2)
		}
		in.ResolvedLabels = labels
	}
	if opts.WithEmbedIDs {
		if cfg.NumAtomEmbeds > 0 {
			ids := make([]int, m)
			for i := range ids {
				ids[i] = rng.Intn(cfg.NumAtomEmbeds)
			}
			in.AtomIDs = ids
		}
		if cfg.NumAtompairEmbeds > 0 {
			pairIDs := ten.New(m, m)
			data := pairIDs.Data()
			for i := range data {
				data[i] = float64(rng.Intn(cfg.NumAtompairEmbeds))
			}
			in.AtompairIDs = pairIDs
		}
		if cfg.NumMoleculeMods > 0 {
			mods := make([][]bool, n)
			for i := range mods {
				mods[i] = make([]bool, cfg.NumMoleculeMods)
				// every third token carries a modification
				if i%3 == 0 {
					mods[i][rng.Intn(cfg.NumMoleculeMods)] = true
				}
			}
			in.IsMoleculeMod = mods
		}
		in.AtomParentIDs = RepeatInterleaveInts(asym, lens)
	}
	if opts.NumMSASeqs > 0 {
		msa := ten.New(opts.NumMSASeqs, n, cfg.DimMSAInput)
		fillNorm(rng, msa.Data())
		in.MSA = msa
		in.MSAMask = trueMask(opts.NumMSASeqs)
		add := ten.New(opts.NumMSASeqs, n, cfg.DimAdditionalMSAFeats)
		fillNorm(rng, add.Data())
		in.AdditionalMSAFeats = add
	}
	if opts.NumTemplates > 0 {
		tmpl := ten.New(opts.NumTemplates, n, n, cfg.DimTemplateFeats)
		fillNorm(rng, tmpl.Data())
		in.Templates = tmpl
		in.TemplateMask = trueMask(opts.NumTemplates)
	}
	return in
}

// MockBatch generates a batch of size elements.
func MockBatch(rng *rand.Rand, cfg *Config, opts MockOptions, size int) *BatchedAtomInput {
	b := &BatchedAtomInput{}
	for i := 0; i < size; i++ {
		b.Elements = append(b.Elements, MockAtomInput(rng, cfg, opts))
	}
	return b
}

func fillNorm(rng *rand.Rand, data []float64) {
	for i := range data {
		data[i] = rng.NormFloat64()
	}
}
