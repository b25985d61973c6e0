/*
 * align_test.go, part of foldcore.
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
	"testing"

	"golang.org/x/exp/rand"

	"github.com/rgallego/foldcore/v3"
)

func randCoords(rng *rand.Rand, n int) *v3.Matrix {
	out := v3.Zeros(n)
	for i := 0; i < n; i++ {
		for k := 0; k < 3; k++ {
			out.Set(i, k, rng.NormFloat64()*3)
		}
	}
	return out
}

func maxRowDist(a, b *v3.Matrix) float64 {
	var worst float64
	for i := 0; i < a.NVecs(); i++ {
		dx := a.At(i, 0) - b.At(i, 0)
		dy := a.At(i, 1) - b.At(i, 1)
		dz := a.At(i, 2) - b.At(i, 2)
		if d := math.Sqrt(dx*dx + dy*dy + dz*dz); d > worst {
			worst = d
		}
	}
	return worst
}

func TestAlignSelfConsistency(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	X := randCoords(rng, 20)
	got, err := WeightedRigidAlign(X, X, OnesWeights(20), nil)
	if err != nil {
		t.Fatal(err)
	}
	if d := maxRowDist(got, X); d > 1e-5 {
		t.Errorf("self-alignment moved points by up to %g", d)
	}
}

func TestAlignRecoversRigidMotion(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	X := randCoords(rng, 25)
	Y := CentreRandomAugmentation(X, rng, 5)
	got, err := WeightedRigidAlign(Y, X, OnesWeights(25), nil)
	if err != nil {
		t.Fatal(err)
	}
	if d := maxRowDist(got, X); d > 1e-5 {
		t.Errorf("alignment residual %g after rigid motion, want < 1e-5", d)
	}
}

func TestAlignMaskMatchesPrefilter(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	n := 18
	X := randCoords(rng, n)
	Y := CentreRandomAugmentation(X, rng, 2)

	mask := make([]bool, n)
	keep := []int{0, 2, 3, 5, 8, 9, 11, 14, 16}
	for _, i := range keep {
		mask[i] = true
	}

	masked, err := WeightedRigidAlign(Y, X, OnesWeights(n), mask)
	if err != nil {
		t.Fatal(err)
	}

	subY := v3.Zeros(len(keep))
	subY.SomeVecs(Y, keep)
	subX := v3.Zeros(len(keep))
	subX.SomeVecs(X, keep)
	filtered, err := WeightedRigidAlign(subY, subX, OnesWeights(len(keep)), nil)
	if err != nil {
		t.Fatal(err)
	}

	for s, i := range keep {
		for k := 0; k < 3; k++ {
			if diff := math.Abs(masked.At(i, k) - filtered.At(s, k)); diff > 1e-5 {
				t.Fatalf("masked vs prefiltered alignment differ by %g at row %d", diff, i)
			}
		}
	}
}

func TestAlignShapeChecks(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	X := randCoords(rng, 5)
	Y := randCoords(rng, 6)
	if _, err := WeightedRigidAlign(X, Y, OnesWeights(5), nil); err == nil {
		t.Error("expected error for mismatched point counts")
	}
	if _, err := WeightedRigidAlign(X, X, OnesWeights(4), nil); err == nil {
		t.Error("expected error for short weight vector")
	}
}
