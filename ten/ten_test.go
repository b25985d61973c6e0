/*
 * ten_test.go, part of foldcore.
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

package ten

import (
	"math"
	"testing"
)

func TestIndexingAndViews(t *testing.T) {
	A, err := FromSlice([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, 2, 2, 3)
	if err != nil {
		t.Fatal(err)
	}
	if A.At(1, 0, 2) != 9 {
		t.Errorf("At(1,0,2) = %g, want 9", A.At(1, 0, 2))
	}
	v := A.Vec(0, 1)
	if len(v) != 3 || v[0] != 4 {
		t.Errorf("Vec(0,1) = %v", v)
	}
	v[0] = 40 // views share storage
	if A.At(0, 1, 0) != 40 {
		t.Error("Vec does not share storage")
	}
	s := A.Sub(1)
	if s.Rank() != 2 || s.At(1, 1) != 11 {
		t.Errorf("Sub(1) wrong: %v", s)
	}
}

func TestReshapeSharesData(t *testing.T) {
	A := New(2, 6)
	A.Set(5, 1, 3)
	B := A.Reshape(3, 4)
	if B.At(2, 1) != 5 {
		t.Errorf("reshaped view lost data, got %g", B.At(2, 1))
	}
	B.Set(7, 0, 0)
	if A.At(0, 0) != 7 {
		t.Error("Reshape does not share storage")
	}
}

func TestElementwise(t *testing.T) {
	A := Full(2, 2, 3)
	B := Full(3, 2, 3)
	A.MulElem(B)
	A.AddScaled(B, -1)
	for _, v := range A.Data() {
		if v != 3 {
			t.Fatalf("expected 3, got %g", v)
		}
	}
}

func TestSoftmax(t *testing.T) {
	x := []float64{1, 2, 3}
	Softmax(x)
	var sum float64
	for _, v := range x {
		sum += v
	}
	if math.Abs(sum-1) > 1e-12 {
		t.Errorf("softmax sums to %g", sum)
	}
	if !(x[2] > x[1] && x[1] > x[0]) {
		t.Errorf("softmax not monotone: %v", x)
	}

	// a fully masked row must come out as zeros, not NaN
	inf := math.Inf(-1)
	y := []float64{inf, inf}
	Softmax(y)
	if y[0] != 0 || y[1] != 0 {
		t.Errorf("masked softmax = %v, want zeros", y)
	}
}

func TestLayerNorm(t *testing.T) {
	x := []float64{1, 2, 3, 4}
	gamma := []float64{1, 1, 1, 1}
	beta := []float64{0, 0, 0, 0}
	LayerNorm(x, gamma, beta, 1e-5)
	var mean, varsum float64
	for _, v := range x {
		mean += v
	}
	mean /= 4
	for _, v := range x {
		varsum += (v - mean) * (v - mean)
	}
	if math.Abs(mean) > 1e-10 {
		t.Errorf("normalized mean = %g", mean)
	}
	if math.Abs(varsum/4-1) > 1e-3 {
		t.Errorf("normalized variance = %g", varsum/4)
	}
}

func TestMaskedMean(t *testing.T) {
	x := []float64{1, 2, 100}
	got := MaskedMean(x, []bool{true, true, false})
	if got != 1.5 {
		t.Errorf("MaskedMean = %g, want 1.5", got)
	}
}
