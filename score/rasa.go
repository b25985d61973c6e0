/*
 * rasa.go, part of foldcore.
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

// Relative solvent accessibility of unresolved regions, computed by
// shelling out to mkdssp when it is installed. Availability is probed
// once; without the tool the sub-score is reported as unavailable, it
// never fails the scoring pipeline.

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rgallego/foldcore"
	"github.com/rgallego/foldcore/v3"
)

// rasaDisorderedCutoff is the relative accessibility above which a
// residue counts as disordered.
const rasaDisorderedCutoff = 0.581

// RASAResult is the tagged outcome of the accessibility sub-score.
type RASAResult struct {
	Available bool
	Value     float64
}

// DSSP wraps the external mkdssp binary.
type DSSP struct {
	path string
}

// NewDSSP probes for mkdssp on the PATH. The boolean reports whether
// the tool was found; the returned handle is usable either way, scoring
// methods on an unavailable handle return tagged unavailable results.
func NewDSSP() (*DSSP, bool) {
	path, err := exec.LookPath("mkdssp")
	if err != nil {
		return &DSSP{}, false
	}
	return &DSSP{path: path}, true
}

// Available reports whether the external tool was found.
func (d *DSSP) Available() bool { return d != nil && d.path != "" }

// UnresolvedRASA computes the mean relative solvent accessibility over
// the tokens owning unresolved atoms, from the candidate coordinates.
// Any failure, including tool unavailability, yields an unavailable
// result rather than an error: the sub-score is optional by contract.
func (d *DSSP) UnresolvedRASA(coords *v3.Matrix, in *fold.AtomInput) RASAResult {
	if !d.Available() {
		return RASAResult{}
	}
	rasa, err := d.perTokenRASA(coords, in)
	if err != nil {
		return RASAResult{}
	}
	unresolved := unresolvedTokens(in)
	var sum, count float64
	for i, u := range unresolved {
		if u && rasa[i] >= 0 {
			sum += rasa[i]
			count++
		}
	}
	if count == 0 {
		return RASAResult{Available: true, Value: 0}
	}
	return RASAResult{Available: true, Value: sum / count}
}

// FracDisordered is the fraction of tokens whose relative accessibility
// exceeds the disorder cutoff.
func (d *DSSP) FracDisordered(coords *v3.Matrix, in *fold.AtomInput) RASAResult {
	if !d.Available() {
		return RASAResult{}
	}
	rasa, err := d.perTokenRASA(coords, in)
	if err != nil {
		return RASAResult{}
	}
	var dis, count float64
	for _, v := range rasa {
		if v < 0 {
			continue
		}
		count++
		if v >= rasaDisorderedCutoff {
			dis++
		}
	}
	if count == 0 {
		return RASAResult{Available: true, Value: 0}
	}
	return RASAResult{Available: true, Value: dis / count}
}

// perTokenRASA runs mkdssp on a CA-trace PDB of the candidate and
// returns one relative accessibility per token, -1 where the token has
// no representative protein atom.
func (d *DSSP) perTokenRASA(coords *v3.Matrix, in *fold.AtomInput) ([]float64, error) {
	dir, err := os.MkdirTemp("", "foldcore-dssp")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	pdb := filepath.Join(dir, "cand.pdb")
	out := filepath.Join(dir, "cand.dssp")
	rows, maxacc, err := writeCATrace(pdb, coords, in)
	if err != nil {
		return nil, err
	}
	cmd := exec.Command(d.path, "--output-format", "dssp", pdb, out)
	if err := cmd.Run(); err != nil {
		return nil, err
	}
	acc, err := parseDSSPAcc(out)
	if err != nil {
		return nil, err
	}

	rasa := make([]float64, in.NumTokens())
	for i := range rasa {
		rasa[i] = -1
	}
	for r, tok := range rows {
		if r >= len(acc) {
			break
		}
		rasa[tok] = acc[r] / maxacc[r]
	}
	return rasa, nil
}

// Theoretical maximum accessible surface per residue (Tien 2013), by
// one-letter code.
var maxAccessibility = map[byte]float64{
	'A': 129, 'R': 274, 'N': 195, 'D': 193, 'C': 167, 'E': 223, 'Q': 225,
	'G': 104, 'H': 224, 'I': 197, 'L': 201, 'K': 236, 'M': 224, 'F': 240,
	'P': 159, 'S': 155, 'T': 172, 'W': 285, 'Y': 263, 'V': 174,
}

var threeLetter = map[byte]string{
	'A': "ALA", 'R': "ARG", 'N': "ASN", 'D': "ASP", 'C': "CYS", 'E': "GLU",
	'Q': "GLN", 'G': "GLY", 'H': "HIS", 'I': "ILE", 'L': "LEU", 'K': "LYS",
	'M': "MET", 'F': "PHE", 'P': "PRO", 'S': "SER", 'T': "THR", 'W': "TRP",
	'Y': "TYR", 'V': "VAL",
}

// writeCATrace writes one CA record per protein token at the token's
// representative atom position. It returns the token index of each
// written row and the matching normalization constants.
func writeCATrace(path string, coords *v3.Matrix, in *fold.AtomInput) (rows []int, maxacc []float64, err error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	serial := 1
	for i := 0; i < in.NumTokens(); i++ {
		if in.IsMoleculeTypes != nil && !in.IsMoleculeTypes[i][fold.MolProtein] {
			continue
		}
		a := in.MoleculeAtomIndices[i]
		if a < 0 {
			continue
		}
		code := byte('G')
		if in.MoleculeIDs != nil {
			c := byte(in.MoleculeIDs[i]) + 'A'
			if _, ok := threeLetter[c]; ok {
				code = c
			}
		}
		chain := byte('A')
		if in.AsymID != nil {
			chain += byte(in.AsymID[i] % 26)
		}
		resSeq := i + 1
		if in.ResidueIndex != nil {
			resSeq = in.ResidueIndex[i] + 1
		}
		_, err = fmt.Fprintf(f, "ATOM  %5d  CA  %3s %c%4d    %8.3f%8.3f%8.3f  1.00  0.00           C\n",
			serial, threeLetter[code], chain, resSeq,
			coords.At(a, 0), coords.At(a, 1), coords.At(a, 2))
		if err != nil {
			return nil, nil, err
		}
		serial++
		rows = append(rows, i)
		maxacc = append(maxacc, maxAccessibility[code])
	}
	if _, err = fmt.Fprintln(f, "END"); err != nil {
		return nil, nil, err
	}
	return rows, maxacc, nil
}

// parseDSSPAcc extracts the ACC column from classic DSSP output, one
// value per residue row.
func parseDSSPAcc(path string) ([]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(string(data), "\n")
	var acc []float64
	inBody := false
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "#  RESIDUE") {
			inBody = true
			continue
		}
		if !inBody || len(line) < 38 {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(line[34:38]), 64)
		if err != nil {
			continue
		}
		acc = append(acc, v)
	}
	if len(acc) == 0 {
		return nil, fmt.Errorf("score: no accessibility rows in %s", path)
	}
	return acc, nil
}

// unresolvedTokens flags tokens owning at least one unresolved atom,
// from the missing-atom mask or the resolved labels.
func unresolvedTokens(in *fold.AtomInput) []bool {
	n := in.NumTokens()
	out := make([]bool, n)
	offsets := fold.ExclusiveCumsum(in.MoleculeAtomLens)
	for i, l := range in.MoleculeAtomLens {
		for a := offsets[i]; a < offsets[i]+l; a++ {
			if in.MissingAtomMask != nil && in.MissingAtomMask[a] {
				out[i] = true
			}
			if in.ResolvedLabels != nil && in.ResolvedLabels[a] == 0 {
				out[i] = true
			}
		}
	}
	return out
}
