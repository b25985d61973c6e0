/*
 * frames_test.go, part of foldcore.
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

func TestRigidFromThreePoints(t *testing.T) {
	p1, _ := v3.NewMatrix([]float64{1, 2, 0})
	p2, _ := v3.NewMatrix([]float64{1, 1, 1})
	p3, _ := v3.NewMatrix([]float64{4, 1, 1})
	f := RigidFromThreePoints(p1, p2, p3)

	// p2 is the origin of its own frame
	local := v3.Zeros(1)
	f.Express(local, p2)
	for k := 0; k < 3; k++ {
		if math.Abs(local.At(0, k)) > 1e-6 {
			t.Fatalf("origin does not map to zero: %v", local)
		}
	}
	// p3 lies on the first axis
	f.Express(local, p3)
	if math.Abs(local.At(0, 1)) > 1e-5 || math.Abs(local.At(0, 2)) > 1e-5 {
		t.Errorf("p3 off the first axis: %v", local)
	}
	if local.At(0, 0) < 1 {
		t.Errorf("p3 at negative or tiny first-axis coordinate: %v", local)
	}
	// the rotation is proper
	if d := v3.Det3(v3.Matrix2Dense(f.Rot)); math.Abs(d-1) > 1e-6 {
		t.Errorf("frame rotation determinant = %g", d)
	}
}

func TestExpressBroadcast(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	coords := randCoords(rng, 7)
	f := RigidFromThreePoints(coords.VecView(0), coords.VecView(1), coords.VecView(2))

	broadcast := ExpressCoordinatesInFrame(coords, []v3.Frame{f})
	perRow := v3.Zeros(7)
	row := v3.Zeros(1)
	for i := 0; i < 7; i++ {
		f.Express(row, coords.VecView(i))
		perRow.SetVecs(row, []int{i})
	}
	if d := maxRowDist(broadcast, perRow); d > 1e-12 {
		t.Errorf("broadcast differs from per-row expression by %g", d)
	}
}

func TestAlignmentErrorSelfIsZero(t *testing.T) {
	rng := rand.New(rand.NewSource(12))
	coords := randCoords(rng, 12)
	idx := [][3]int{{0, 1, 2}, {3, 4, 5}, {6, 7, 8}, {9, 10, 11}}
	frames := FramesFromThreePoints(coords, idx)

	errs := ComputeAlignmentError(coords, coords, frames, frames)
	for i := 0; i < len(frames); i++ {
		var mean float64
		for _, e := range errs.Vec(i) {
			mean += e
		}
		mean /= float64(errs.Dim(1))
		if mean > 1e-3 {
			t.Errorf("frame %d mean self-error = %g, want < 1e-3", i, mean)
		}
	}
}

func TestAlignmentErrorRigidInvariance(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	coords := randCoords(rng, 9)
	moved := CentreRandomAugmentation(coords, rng, 3)
	idx := [][3]int{{0, 1, 2}, {3, 4, 5}, {6, 7, 8}}

	errs := ComputeAlignmentError(moved, coords,
		FramesFromThreePoints(moved, idx), FramesFromThreePoints(coords, idx))
	for i := range idx {
		for j, e := range errs.Vec(i) {
			if e > 1e-5 {
				t.Fatalf("aligned error (%d,%d) = %g after rigid motion", i, j, e)
			}
		}
	}
}
