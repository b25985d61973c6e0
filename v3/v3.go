/*
 * v3.go, part of foldcore.
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

// Package v3 handles sets of vectors in 3D space. A Matrix is a set of
// row vectors, i.e. the cartesian coordinates of points in 3D space;
// the names of several functions in the package reflect this.
package v3

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Matrix is a set of vectors in 3D space, backed by a gonum dense matrix
// with 3 columns.
type Matrix struct {
	*mat.Dense
}

// Matrix2Dense returns the gonum matrix backing A.
func Matrix2Dense(A *Matrix) *mat.Dense {
	return A.Dense
}

// Dense2Matrix wraps a gonum matrix with 3 columns. It panics if the
// matrix has a different number of columns.
func Dense2Matrix(A *mat.Dense) *Matrix {
	_, c := A.Dims()
	if c != 3 {
		panic(ErrNot3xXMatrix)
	}
	return &Matrix{A}
}

// NewMatrix generates a Matrix with 3 columns from data.
func NewMatrix(data []float64) (*Matrix, error) {
	const cols int = 3
	l := len(data)
	rows := l / cols
	if l%cols != 0 {
		return nil, fmt.Errorf("v3: input slice length %d not divisible by %d", l, cols)
	}
	return &Matrix{mat.NewDense(rows, cols, data)}, nil
}

// Zeros returns a zero-filled Matrix with vecs vectors.
func Zeros(vecs int) *Matrix {
	return &Matrix{mat.NewDense(vecs, 3, nil)}
}

// NVecs returns the number of vectors in the matrix.
func (F *Matrix) NVecs() int {
	r, _ := F.Dims()
	return r
}

// VecView returns a view of the i-th vector of F. Changes in the view
// are reflected in F and vice versa.
func (F *Matrix) VecView(i int) *Matrix {
	return &Matrix{F.Slice(i, i+1, 0, 3).(*mat.Dense)}
}

// View returns a view of F spanning r rows starting from row i.
func (F *Matrix) View(i, r int) *Matrix {
	return &Matrix{F.Slice(i, i+r, 0, 3).(*mat.Dense)}
}

// SwapVecs swaps the vectors i and j.
func (F *Matrix) SwapVecs(i, j int) {
	for k := 0; k < 3; k++ {
		vi, vj := F.At(i, k), F.At(j, k)
		F.Set(i, k, vj)
		F.Set(j, k, vi)
	}
}

// SomeVecs copies the vectors of A with the indexes in clist, in that
// order, into the receiver, which must have len(clist) rows.
func (F *Matrix) SomeVecs(A *Matrix, clist []int) {
	if F.NVecs() != len(clist) {
		panic(ErrShape)
	}
	for i, v := range clist {
		for k := 0; k < 3; k++ {
			F.Set(i, k, A.At(v, k))
		}
	}
}

// SetVecs copies the rows of A into the rows of the receiver given by
// clist, in order.
func (F *Matrix) SetVecs(A *Matrix, clist []int) {
	for i, v := range clist {
		for k := 0; k < 3; k++ {
			F.Set(v, k, A.At(i, k))
		}
	}
}

// AddVec adds the 1x3 row vector vec to each row of A, putting the
// result in the receiver.
func (F *Matrix) AddVec(A, vec *Matrix) {
	vr, vc := vec.Dims()
	if vr != 1 || vc != 3 {
		panic(ErrNotXx3Matrix)
	}
	ar, _ := A.Dims()
	for i := 0; i < ar; i++ {
		for k := 0; k < 3; k++ {
			F.Set(i, k, A.At(i, k)+vec.At(0, k))
		}
	}
}

// SubVec subtracts the 1x3 row vector vec from each row of A, putting
// the result in the receiver.
func (F *Matrix) SubVec(A, vec *Matrix) {
	vr, vc := vec.Dims()
	if vr != 1 || vc != 3 {
		panic(ErrNotXx3Matrix)
	}
	ar, _ := A.Dims()
	for i := 0; i < ar; i++ {
		for k := 0; k < 3; k++ {
			F.Set(i, k, A.At(i, k)-vec.At(0, k))
		}
	}
}

// Cross puts the cross product of the 1x3 vectors a and b in the receiver.
func (F *Matrix) Cross(a, b *Matrix) {
	F.Set(0, 0, a.At(0, 1)*b.At(0, 2)-a.At(0, 2)*b.At(0, 1))
	F.Set(0, 1, a.At(0, 2)*b.At(0, 0)-a.At(0, 0)*b.At(0, 2))
	F.Set(0, 2, a.At(0, 0)*b.At(0, 1)-a.At(0, 1)*b.At(0, 0))
}

// Mul wraps mat.Dense.Mul taking care of the case when one of the
// arguments is also the receiver, which gonum does not allow.
func (F *Matrix) Mul(A, B mat.Matrix) {
	if a, ok := A.(*Matrix); ok {
		A = a.Dense
	}
	if b, ok := B.(*Matrix); ok {
		B = b.Dense
	}
	if F.Dense == A || F.Dense == B {
		tmp := new(mat.Dense)
		tmp.Mul(A, B)
		F.Dense.Copy(tmp)
		return
	}
	F.Dense.Mul(A, B)
}

// Clone returns a deep copy of F.
func (F *Matrix) Clone() *Matrix {
	R := Zeros(F.NVecs())
	R.Copy(F.Dense)
	return R
}

// String returns a neat string representation of the matrix.
func (F *Matrix) String() string {
	return fmt.Sprintf("%v", mat.Formatted(F.Dense))
}

// Errors panicked by the package.
type v3Error string

func (err v3Error) Error() string { return string(err) }

const (
	ErrNot3xXMatrix = v3Error("v3: the other dimension should be 3")
	ErrNotXx3Matrix = v3Error("v3: expected a 1x3 row vector")
	ErrShape        = v3Error("v3: dimension mismatch")
)
