/*
 * lddt.go, part of foldcore.
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
	"math"

	"github.com/rgallego/foldcore/v3"
)

// lddtThresholds are the distance-difference cutoffs of the lDDT score,
// in Angstrom.
var lddtThresholds = [4]float64{0.5, 1, 2, 4}

// Inclusion radii for the lDDT neighborhood, nucleic acids use the wider
// one.
const (
	lddtRadius        = 15.0
	lddtNucleicRadius = 30.0
)

// SmoothLDDTLoss is a differentiable relaxation of 1 - lDDT between a
// predicted and a true structure: the hard threshold comparisons are
// replaced by sigmoids centered on each cutoff, averaged over the four
// cutoffs and over all included pairs. A pair (i,j), i != j, is included
// when its true distance is below the inclusion radius, 30 A if either
// atom is nucleic and 15 A otherwise. Returns 1 when no pair qualifies.
func SmoothLDDTLoss(pred, truth *v3.Matrix, isDNA, isRNA []bool) float64 {
	n := pred.NVecs()
	if truth.NVecs() != n {
		panic(v3.ErrShape)
	}
	var score, count float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			dt := rowDist(truth, i, j)
			radius := lddtRadius
			if isNucleic(isDNA, isRNA, i) || isNucleic(isDNA, isRNA, j) {
				radius = lddtNucleicRadius
			}
			if dt >= radius {
				continue
			}
			dp := rowDist(pred, i, j)
			diff := math.Abs(dt - dp)
			var eps float64
			for _, th := range lddtThresholds {
				eps += sigmoidScalar(th - diff)
			}
			score += eps / 4
			count++
		}
	}
	if count == 0 {
		return 1
	}
	return 1 - score/count
}

func isNucleic(isDNA, isRNA []bool, i int) bool {
	return (isDNA != nil && isDNA[i]) || (isRNA != nil && isRNA[i])
}

func rowDist(a *v3.Matrix, i, j int) float64 {
	dx := a.At(i, 0) - a.At(j, 0)
	dy := a.At(i, 1) - a.At(j, 1)
	dz := a.At(i, 2) - a.At(j, 2)
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func sigmoidScalar(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
