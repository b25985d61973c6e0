/*
 * frame.go, part of foldcore.
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

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// Frame is a local orthonormal coordinate system: a 3x3 rotation whose
// rows are the frame axes, anchored at Origin. A valid rotation is
// orthonormal with determinant +1; constructors are responsible for that.
type Frame struct {
	Rot    *Matrix // 3x3, rows are the frame axes
	Origin *Matrix // 1x3
}

// IdentityFrame returns the laboratory frame.
func IdentityFrame() Frame {
	r := Zeros(3)
	r.Set(0, 0, 1)
	r.Set(1, 1, 1)
	r.Set(2, 2, 1)
	return Frame{Rot: r, Origin: Zeros(1)}
}

// Express writes into dst the coordinates of coords expressed in the
// frame's local basis: local_i = axis_i . (x - origin). In row-vector
// form that is (x-origin)_row * Rot^T. dst and coords may be the same
// matrix.
func (f Frame) Express(dst, coords *Matrix) {
	dst.SubVec(coords, f.Origin)
	dst.Mul(dst, f.Rot.Dense.T())
}

// RandomRotation returns a rotation matrix drawn uniformly from SO(3),
// built from a random unit quaternion.
func RandomRotation(rng *rand.Rand) *Matrix {
	// Shoemake's method: three uniforms to a uniform unit quaternion.
	u1, u2, u3 := rng.Float64(), rng.Float64(), rng.Float64()
	s1 := math.Sqrt(1 - u1)
	s2 := math.Sqrt(u1)
	w := s1 * math.Sin(2*math.Pi*u2)
	x := s1 * math.Cos(2*math.Pi*u2)
	y := s2 * math.Sin(2*math.Pi*u3)
	z := s2 * math.Cos(2*math.Pi*u3)
	data := []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	}
	return &Matrix{mat.NewDense(3, 3, data)}
}

// Det3 returns the determinant of a 3x3 matrix. It panics if the matrix
// is not 3x3.
func Det3(A mat.Matrix) float64 {
	r, c := A.Dims()
	if r != 3 || c != 3 {
		panic(ErrShape)
	}
	return A.At(0, 0)*(A.At(1, 1)*A.At(2, 2)-A.At(2, 1)*A.At(1, 2)) -
		A.At(1, 0)*(A.At(0, 1)*A.At(2, 2)-A.At(2, 1)*A.At(0, 2)) +
		A.At(2, 0)*(A.At(0, 1)*A.At(1, 2)-A.At(1, 1)*A.At(0, 2))
}
