/*
 * align.go, part of foldcore.
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
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/rgallego/foldcore/v3"
)

// WeightedRigidAlign superimposes pred onto ref by the weighted Kabsch
// algorithm and returns the transformed copy of pred. Weights are
// per-point; a nil mask uses every point, otherwise only masked-in points
// contribute to the fitted rotation and translation (the transform is
// still applied to every row, so masked alignment agrees elementwise with
// aligning the pre-filtered subset). The rotation is guaranteed proper:
// if the SVD yields a reflection, the sign of the right-singular vector
// with the smallest singular value is flipped.
func WeightedRigidAlign(pred, ref *v3.Matrix, weights []float64, mask []bool) (*v3.Matrix, error) {
	n := pred.NVecs()
	if ref.NVecs() != n {
		return nil, shapeErrorf("alignment needs equal point counts, got %d and %d", n, ref.NVecs())
	}
	if len(weights) != n {
		return nil, shapeErrorf("%d weights for %d points", len(weights), n)
	}
	if mask != nil && len(mask) != n {
		return nil, shapeErrorf("%d mask entries for %d points", len(mask), n)
	}

	var wsum float64
	predMean := [3]float64{}
	refMean := [3]float64{}
	for i := 0; i < n; i++ {
		if mask != nil && !mask[i] {
			continue
		}
		w := weights[i]
		wsum += w
		for k := 0; k < 3; k++ {
			predMean[k] += w * pred.At(i, k)
			refMean[k] += w * ref.At(i, k)
		}
	}
	if wsum == 0 {
		return nil, shapeErrorf("all alignment weights are zero")
	}
	for k := 0; k < 3; k++ {
		predMean[k] /= wsum
		refMean[k] /= wsum
	}

	// weighted cross-covariance H = P^T W R over the centered point sets
	H := mat.NewDense(3, 3, nil)
	for i := 0; i < n; i++ {
		if mask != nil && !mask[i] {
			continue
		}
		w := weights[i]
		for a := 0; a < 3; a++ {
			pa := pred.At(i, a) - predMean[a]
			for b := 0; b < 3; b++ {
				rb := ref.At(i, b) - refMean[b]
				H.Set(a, b, H.At(a, b)+w*pa*rb)
			}
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(H, mat.SVDFull); !ok {
		return nil, fmt.Errorf("fold: SVD of alignment covariance failed")
	}
	var U, V mat.Dense
	svd.UTo(&U)
	svd.VTo(&V)

	// rotation taking centered pred points onto centered ref points
	var rot mat.Dense
	rot.Mul(&V, U.T())
	if v3.Det3(&rot) < 0 {
		// Singular values come out in descending order, so the last right
		// singular vector belongs to the smallest one. Flipping its sign
		// turns the reflection into a proper rotation. A zero smallest
		// singular value makes the flip a no-op on the fit, and the choice
		// of vector is deterministic either way.
		for k := 0; k < 3; k++ {
			V.Set(k, 2, -V.At(k, 2))
		}
		rot.Mul(&V, U.T())
	}

	out := v3.Zeros(n)
	for i := 0; i < n; i++ {
		for a := 0; a < 3; a++ {
			var s float64
			for b := 0; b < 3; b++ {
				s += rot.At(a, b) * (pred.At(i, b) - predMean[b])
			}
			out.Set(i, a, s+refMean[a])
		}
	}
	return out, nil
}

// OnesWeights returns a weight vector of n ones, the unweighted case.
func OnesWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	return w
}
