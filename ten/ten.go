/*
 * ten.go, part of foldcore.
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

// Package ten provides a small rank-N dense tensor on top of a flat
// float64 slice. It exists because gonum matrices are rank-2; everything
// that is actually linear algebra is delegated to gonum through the
// Matrix view. Views share backing storage with their parent.
package ten

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrShape is panicked by operations whose arguments disagree in shape.
	ErrShape = errors.New("ten: dimension mismatch")
	// ErrView is panicked when a view cannot be taken over the storage.
	ErrView = errors.New("ten: non-contiguous view")
)

// Dense is a rank-N tensor in row-major order.
type Dense struct {
	shape  []int
	stride []int
	data   []float64
}

func strides(shape []int) []int {
	st := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		st[i] = acc
		acc *= shape[i]
	}
	return st
}

func size(shape []int) int {
	acc := 1
	for _, s := range shape {
		acc *= s
	}
	return acc
}

// New returns a zero-filled tensor with the given shape.
func New(shape ...int) *Dense {
	for _, s := range shape {
		if s < 0 {
			panic(ErrShape)
		}
	}
	sh := make([]int, len(shape))
	copy(sh, shape)
	return &Dense{shape: sh, stride: strides(sh), data: make([]float64, size(sh))}
}

// FromSlice wraps data (not copied) into a tensor of the given shape.
func FromSlice(data []float64, shape ...int) (*Dense, error) {
	if len(data) != size(shape) {
		return nil, fmt.Errorf("ten: %d elements cannot fill shape %v", len(data), shape)
	}
	sh := make([]int, len(shape))
	copy(sh, shape)
	return &Dense{shape: sh, stride: strides(sh), data: data}, nil
}

// Full returns a tensor with every element set to v.
func Full(v float64, shape ...int) *Dense {
	T := New(shape...)
	for i := range T.data {
		T.data[i] = v
	}
	return T
}

// Shape returns the tensor shape. The slice must not be modified.
func (T *Dense) Shape() []int { return T.shape }

// Rank returns the number of axes.
func (T *Dense) Rank() int { return len(T.shape) }

// Dim returns the length of axis i.
func (T *Dense) Dim(i int) int { return T.shape[i] }

// Len returns the total number of elements.
func (T *Dense) Len() int { return len(T.data) }

// Data returns the backing slice, in row-major order.
func (T *Dense) Data() []float64 { return T.data }

func (T *Dense) offset(idx []int) int {
	if len(idx) != len(T.shape) {
		panic(ErrShape)
	}
	off := 0
	for i, ix := range idx {
		if ix < 0 || ix >= T.shape[i] {
			panic(ErrShape)
		}
		off += ix * T.stride[i]
	}
	return off
}

// At returns the element at the given multi-index.
func (T *Dense) At(idx ...int) float64 { return T.data[T.offset(idx)] }

// Set stores v at the given multi-index.
func (T *Dense) Set(v float64, idx ...int) { T.data[T.offset(idx)] = v }

// Sub returns a view of the i-th slice along the first axis.
func (T *Dense) Sub(i int) *Dense {
	if len(T.shape) < 1 || i < 0 || i >= T.shape[0] {
		panic(ErrShape)
	}
	return &Dense{
		shape:  T.shape[1:],
		stride: T.stride[1:],
		data:   T.data[i*T.stride[0] : (i+1)*T.stride[0]],
	}
}

// Vec returns the innermost contiguous vector selected by idx, which must
// index every axis but the last. The returned slice shares storage with T.
func (T *Dense) Vec(idx ...int) []float64 {
	if len(idx) != len(T.shape)-1 {
		panic(ErrShape)
	}
	off := 0
	for i, ix := range idx {
		if ix < 0 || ix >= T.shape[i] {
			panic(ErrShape)
		}
		off += ix * T.stride[i]
	}
	n := T.shape[len(T.shape)-1]
	return T.data[off : off+n]
}

// Clone returns a deep copy of T.
func (T *Dense) Clone() *Dense {
	R := New(T.shape...)
	copy(R.data, T.data)
	return R
}

// CopyFrom copies the contents of A into T. Shapes must match.
func (T *Dense) CopyFrom(A *Dense) {
	if len(T.data) != len(A.data) {
		panic(ErrShape)
	}
	copy(T.data, A.data)
}

// Zero sets every element to 0.
func (T *Dense) Zero() {
	for i := range T.data {
		T.data[i] = 0
	}
}

// Scale multiplies every element by s.
func (T *Dense) Scale(s float64) {
	for i := range T.data {
		T.data[i] *= s
	}
}

// AddScaled performs T += s*A elementwise.
func (T *Dense) AddScaled(A *Dense, s float64) {
	if len(T.data) != len(A.data) {
		panic(ErrShape)
	}
	for i, v := range A.data {
		T.data[i] += s * v
	}
}

// Add performs T += A elementwise.
func (T *Dense) Add(A *Dense) { T.AddScaled(A, 1) }

// MulElem performs T *= A elementwise.
func (T *Dense) MulElem(A *Dense) {
	if len(T.data) != len(A.data) {
		panic(ErrShape)
	}
	for i, v := range A.data {
		T.data[i] *= v
	}
}

// Reshape returns a view of T with a new shape covering the same storage.
func (T *Dense) Reshape(shape ...int) *Dense {
	if size(shape) != len(T.data) {
		panic(ErrShape)
	}
	sh := make([]int, len(shape))
	copy(sh, shape)
	return &Dense{shape: sh, stride: strides(sh), data: T.data}
}

// Matrix returns a gonum view of a rank-2 tensor. The matrix shares
// storage with T, so writes through either are seen by both.
func (T *Dense) Matrix() *mat.Dense {
	if len(T.shape) != 2 {
		panic(ErrView)
	}
	return mat.NewDense(T.shape[0], T.shape[1], T.data)
}

// String formats small tensors for debugging.
func (T *Dense) String() string {
	if len(T.data) > 64 {
		return fmt.Sprintf("ten.Dense%v", T.shape)
	}
	return fmt.Sprintf("ten.Dense%v%v", T.shape, T.data)
}
