/*
 * inputs.go, part of foldcore.
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
	"strings"

	"github.com/rgallego/foldcore/ten"
	"github.com/rgallego/foldcore/v3"
)

// Input is a tagged input variant convertible to the canonical AtomInput.
// The set of variants is closed: conversion is dispatched through an
// explicit table keyed by the variant tag, not through open-ended runtime
// type discovery.
type Input interface {
	Kind() string
}

// SequenceInput describes an example by protein sequences alone. Atom
// features are derived from per-residue heavy-atom counts; coordinates,
// when given, supervise training.
type SequenceInput struct {
	Proteins []string
	AtomPos  *v3.Matrix // optional ground truth over all atoms, in order
}

// Kind returns the variant tag.
func (SequenceInput) Kind() string { return "sequence" }

// PrecomputedAtomInput wraps an already-built AtomInput.
type PrecomputedAtomInput struct {
	AtomInput *AtomInput
}

// Kind returns the variant tag.
func (PrecomputedAtomInput) Kind() string { return "atom" }

// converters maps variant tags to conversion functions. Adding a variant
// means adding a tag and one entry here.
var converters = map[string]func(Input, *Config) (*AtomInput, error){
	"sequence": sequenceToAtomInput,
	"atom":     precomputedToAtomInput,
}

// ToAtomInput converts any registered input variant to the canonical
// AtomInput record, sized for the given model configuration.
func ToAtomInput(in Input, cfg *Config) (*AtomInput, error) {
	conv, ok := converters[in.Kind()]
	if !ok {
		return nil, configErrorf("unknown input variant %q", in.Kind())
	}
	return conv(in, cfg)
}

// heavyAtoms counts the non-hydrogen atoms of the standard amino acids,
// keyed by one-letter code.
var heavyAtoms = map[byte]int{
	'A': 5, 'R': 11, 'N': 8, 'D': 8, 'C': 6, 'E': 9, 'Q': 9, 'G': 4,
	'H': 10, 'I': 8, 'L': 8, 'K': 9, 'M': 8, 'F': 11, 'P': 7, 'S': 6,
	'T': 7, 'W': 14, 'Y': 12, 'V': 7,
}

func sequenceToAtomInput(in Input, cfg *Config) (*AtomInput, error) {
	seqIn := in.(SequenceInput)
	var lens []int
	var molIDs, asym, entity, resIdx []int
	for ci, prot := range seqIn.Proteins {
		prot = strings.ToUpper(prot)
		for ri := 0; ri < len(prot); ri++ {
			na, ok := heavyAtoms[prot[ri]]
			if !ok {
				return nil, shapeErrorf("unknown residue code %q", string(prot[ri]))
			}
			lens = append(lens, na)
			molIDs = append(molIDs, int(prot[ri]-'A'))
			asym = append(asym, ci)
			entity = append(entity, ci)
			resIdx = append(resIdx, ri)
		}
	}
	n := len(lens)
	m := sumInts(lens)
	isTypes := make([][]bool, n)
	for i := range isTypes {
		isTypes[i] = make([]bool, NumMoleculeTypes)
		isTypes[i][MolProtein] = true
	}
	offsets := ExclusiveCumsum(lens)
	molAtomIdx := make([]int, n)
	frameIdx := make([][3]int, n)
	for i := range lens {
		molAtomIdx[i] = offsets[i] + 1 // CA by heavy-atom convention N, CA, C, ...
		frameIdx[i] = [3]int{offsets[i], offsets[i] + 1, offsets[i] + 2}
	}
	out := &AtomInput{
		AtomFeats:           ten.New(m, cfg.DimAtomInputs),
		AtompairFeats:       ten.New(m, m, cfg.DimAtompairInputs),
		AtomMask:            trueMask(m),
		MoleculeAtomLens:    lens,
		MoleculeIDs:         molIDs,
		AsymID:              asym,
		EntityID:            entity,
		ResidueIndex:        resIdx,
		IsMoleculeTypes:     isTypes,
		MoleculeAtomIndices: molAtomIdx,
		AtomIndicesForFrame: frameIdx,
		AtomPos:             seqIn.AtomPos,
	}
	if err := out.Validate(); err != nil {
		return nil, errDecorate(err, "sequenceToAtomInput")
	}
	return out, nil
}

func precomputedToAtomInput(in Input, _ *Config) (*AtomInput, error) {
	p := in.(PrecomputedAtomInput)
	if err := p.AtomInput.Validate(); err != nil {
		return nil, errDecorate(err, "precomputedToAtomInput")
	}
	return p.AtomInput, nil
}

func trueMask(n int) []bool {
	mask := make([]bool, n)
	for i := range mask {
		mask[i] = true
	}
	return mask
}
