/*
 * features.go, part of foldcore.
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
	"github.com/rgallego/foldcore/ten"
	"github.com/rgallego/foldcore/v3"
)

// Molecule-type indexes into the per-token one-hot IsMoleculeTypes.
// One token is one residue for polymers, or one atom for ligands/ions.
const (
	MolProtein = iota
	MolRNA
	MolDNA
	MolLigand
	MolMetalIon
	NumMoleculeTypes
)

// AtomInput is the canonical per-example feature record at the core's
// boundary. Token-level slices have length NumTokens; atom-level slices
// have length NumAtoms. Atoms of one token are contiguous in the atom
// ordering, and MoleculeAtomLens sums to NumAtoms.
type AtomInput struct {
	// Atom level
	AtomFeats       *ten.Dense // [m, dimAtomInputs]
	AtompairFeats   *ten.Dense // [m, m, dimAtompairInputs] or windowed [nw, w, 2w, dimAtompairInputs]
	AtomIDs         []int      // optional atom-element embedding ids
	AtompairIDs     *ten.Dense // optional [m, m] bond-type ids (stored as float64)
	AtomMask        []bool
	MissingAtomMask []bool // optional
	AtomParentIDs   []int  // optional, groups atoms for intramolecular attention
	AtomPos         *v3.Matrix
	ResolvedLabels  []int // optional, ground truth for the resolved head

	// Token level
	MoleculeAtomLens     []int
	MoleculeIDs          []int
	AsymID               []int // chain grouping
	EntityID             []int
	ResidueIndex         []int
	IsMoleculeTypes      [][]bool // [n][NumMoleculeTypes]
	IsMoleculeMod        [][]bool // [n][numMods], optional
	TokenBonds           [][]bool // optional covalent-bond adjacency
	MoleculeAtomIndices  []int    // representative atom (absolute index) per token, -1 if none
	DistogramAtomIndices []int    // optional, -1 if none
	AtomIndicesForFrame  [][3]int // optional, absolute indexes of the 3 frame atoms
	AdditionalTokenFeats *ten.Dense

	// MSA / templates (optional)
	MSA                *ten.Dense // [s, n, dimMSAInput]
	MSAMask            []bool
	AdditionalMSAFeats *ten.Dense // [s, n, 2]
	Templates          *ten.Dense // [t, n, n, dimTemplateFeats]
	TemplateMask       []bool
}

// NumTokens returns the token-sequence length.
func (in *AtomInput) NumTokens() int { return len(in.MoleculeAtomLens) }

// NumAtoms returns the atom-sequence length.
func (in *AtomInput) NumAtoms() int {
	if in.AtomFeats != nil {
		return in.AtomFeats.Dim(0)
	}
	if in.AtomPos != nil {
		return in.AtomPos.NVecs()
	}
	return sumInts(in.MoleculeAtomLens)
}

// Validate checks the shape invariants that tie the token and atom levels
// together. It returns a ShapeError on the first violation.
func (in *AtomInput) Validate() error {
	m := in.NumAtoms()
	if s := sumInts(in.MoleculeAtomLens); s != m {
		return shapeErrorf("molecule_atom_lens sums to %d but %d atoms were given", s, m)
	}
	n := in.NumTokens()
	if in.AsymID != nil && len(in.AsymID) != n {
		return shapeErrorf("asym_id has %d entries for %d tokens", len(in.AsymID), n)
	}
	if in.IsMoleculeTypes != nil && len(in.IsMoleculeTypes) != n {
		return shapeErrorf("is_molecule_types has %d entries for %d tokens", len(in.IsMoleculeTypes), n)
	}
	if in.AtomPos != nil && in.AtomPos.NVecs() != m {
		return shapeErrorf("atom_pos has %d vectors for %d atoms", in.AtomPos.NVecs(), m)
	}
	if in.AtomMask != nil && len(in.AtomMask) != m {
		return shapeErrorf("atom_mask has %d entries for %d atoms", len(in.AtomMask), m)
	}
	for i, f := range in.AtomIndicesForFrame {
		for _, ix := range f {
			if ix >= m {
				return shapeErrorf("frame atom index %d of token %d out of range (%d atoms)", ix, i, m)
			}
		}
	}
	return nil
}

// TokenMask returns a mask with one entry per token, true where the token
// owns at least one atom.
func (in *AtomInput) TokenMask() []bool {
	mask := make([]bool, in.NumTokens())
	for i, l := range in.MoleculeAtomLens {
		mask[i] = l > 0
	}
	return mask
}

// IsNucleicToken reports whether token i is RNA or DNA.
func (in *AtomInput) IsNucleicToken(i int) bool {
	if in.IsMoleculeTypes == nil {
		return false
	}
	t := in.IsMoleculeTypes[i]
	return t[MolRNA] || t[MolDNA]
}

// BatchedAtomInput is an ordered batch of examples. The core loops over
// elements; padding across elements is the collator's concern.
type BatchedAtomInput struct {
	Elements []*AtomInput
}

// Len returns the batch size.
func (b *BatchedAtomInput) Len() int { return len(b.Elements) }

// Validate validates every element.
func (b *BatchedAtomInput) Validate() error {
	for _, e := range b.Elements {
		if err := e.Validate(); err != nil {
			return errDecorate(err, "BatchedAtomInput.Validate")
		}
	}
	return nil
}

func sumInts(a []int) int {
	var s int
	for _, v := range a {
		s += v
	}
	return s
}
