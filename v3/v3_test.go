/*
 * v3_test.go, part of foldcore.
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

package v3

import (
	"math"
	"testing"

	"golang.org/x/exp/rand"
)

func TestNewMatrix(t *testing.T) {
	if _, err := NewMatrix([]float64{1, 2, 3, 4}); err == nil {
		t.Error("expected error for length not divisible by 3")
	}
	A, err := NewMatrix([]float64{1, 2, 3, 4, 5, 6})
	if err != nil {
		t.Fatal(err)
	}
	if A.NVecs() != 2 || A.At(1, 2) != 6 {
		t.Errorf("unexpected matrix: %v", A)
	}
}

func TestCross(t *testing.T) {
	x, _ := NewMatrix([]float64{1, 0, 0})
	y, _ := NewMatrix([]float64{0, 1, 0})
	z := Zeros(1)
	z.Cross(x, y)
	if z.At(0, 0) != 0 || z.At(0, 1) != 0 || z.At(0, 2) != 1 {
		t.Errorf("x cross y = %v, want (0,0,1)", z)
	}
	// anticommutativity
	w := Zeros(1)
	w.Cross(y, x)
	if w.At(0, 2) != -1 {
		t.Errorf("y cross x = %v, want (0,0,-1)", w)
	}
}

func TestAddSubVec(t *testing.T) {
	A, _ := NewMatrix([]float64{1, 1, 1, 2, 2, 2})
	d, _ := NewMatrix([]float64{1, 0, -1})
	B := Zeros(2)
	B.AddVec(A, d)
	B.SubVec(B, d)
	for i := 0; i < 2; i++ {
		for j := 0; j < 3; j++ {
			if B.At(i, j) != A.At(i, j) {
				t.Fatalf("AddVec/SubVec not inverse at (%d,%d)", i, j)
			}
		}
	}
}

func TestRandomRotation(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for k := 0; k < 5; k++ {
		R := RandomRotation(rng)
		// rows orthonormal
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				var dot float64
				for c := 0; c < 3; c++ {
					dot += R.At(i, c) * R.At(j, c)
				}
				want := 0.0
				if i == j {
					want = 1.0
				}
				if math.Abs(dot-want) > 1e-10 {
					t.Fatalf("rows %d,%d dot = %g, want %g", i, j, dot, want)
				}
			}
		}
		if d := Det3(Matrix2Dense(R)); math.Abs(d-1) > 1e-10 {
			t.Fatalf("determinant = %g, want 1", d)
		}
	}
}

func TestExpressIdentity(t *testing.T) {
	coords, _ := NewMatrix([]float64{1, 2, 3, -4, 0, 2})
	dst := Zeros(2)
	IdentityFrame().Express(dst, coords)
	for i := 0; i < 2; i++ {
		for j := 0; j < 3; j++ {
			if dst.At(i, j) != coords.At(i, j) {
				t.Fatal("identity frame changed coordinates")
			}
		}
	}
}
