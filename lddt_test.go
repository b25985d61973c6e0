/*
 * lddt_test.go, part of foldcore.
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
	"testing"

	"golang.org/x/exp/rand"

	"github.com/rgallego/foldcore/v3"
)

func TestSmoothLDDTOrdering(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	n := 15
	truth := randCoords(rng, n)
	flags := make([]bool, n)

	perfect := SmoothLDDTLoss(truth, truth, flags, flags)

	perturbed := truth.Clone()
	for i := 0; i < n; i++ {
		for k := 0; k < 3; k++ {
			perturbed.Set(i, k, perturbed.At(i, k)+rng.NormFloat64()*2)
		}
	}
	worse := SmoothLDDTLoss(perturbed, truth, flags, flags)

	if perfect < 0 || perfect > 1 || worse < 0 || worse > 1 {
		t.Fatalf("losses out of [0,1]: %g %g", perfect, worse)
	}
	if worse <= perfect {
		t.Errorf("perturbed loss %g not above perfect-prediction loss %g", worse, perfect)
	}
}

func TestSmoothLDDTRigidInvariance(t *testing.T) {
	rng := rand.New(rand.NewSource(22))
	n := 12
	truth := randCoords(rng, n)
	flags := make([]bool, n)

	pred := randCoords(rng, n)
	base := SmoothLDDTLoss(pred, truth, flags, flags)
	moved := SmoothLDDTLoss(CentreRandomAugmentation(pred, rng, 10), truth, flags, flags)
	if diff := moved - base; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("loss changed by %g under rigid motion of the prediction", diff)
	}
}

func TestSmoothLDDTNoPairs(t *testing.T) {
	// two points far outside every inclusion radius: no scored pairs,
	// worst-case loss by convention
	a, _ := v3.NewMatrix([]float64{0, 0, 0, 500, 0, 0})
	flags := []bool{false, false}
	if got := SmoothLDDTLoss(a, a, flags, flags); got != 1 {
		t.Errorf("loss with no scored pairs = %g, want 1", got)
	}
}
