/*
 * runlength_test.go, part of foldcore.
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

	"github.com/rgallego/foldcore/ten"
)

func TestMeanPoolWithLens(t *testing.T) {
	seq, err := ten.FromSlice([]float64{1, 1, 1, 2, 2, 2, 2, 1, 1}, 9, 1)
	if err != nil {
		t.Fatal(err)
	}
	got := MeanPoolWithLens(seq, []int{3, 4, 2})
	want := []float64{1, 2, 1}
	for i, w := range want {
		if got.At(i, 0) != w {
			t.Errorf("pooled[%d] = %g, want %g", i, got.At(i, 0), w)
		}
	}
}

func TestRepeatInterleaveToPads(t *testing.T) {
	seq, _ := ten.FromSlice([]float64{10, 20, 30}, 3, 1)
	lens := []int{2, 3, 1}
	got := RepeatInterleaveTo(seq, lens, 8)
	want := []float64{10, 10, 20, 20, 20, 30, 0, 0}
	for i, w := range want {
		if got.At(i, 0) != w {
			t.Errorf("expanded[%d] = %g, want %g", i, got.At(i, 0), w)
		}
	}
}

func TestPoolThenExpandRoundTrip(t *testing.T) {
	seq, _ := ten.FromSlice([]float64{1, 1, 1, 2, 2, 2, 2, 1, 1}, 9, 1)
	lens := []int{3, 4, 2}
	back := RepeatInterleaveTo(MeanPoolWithLens(seq, lens), lens, 9)
	for i := 0; i < 9; i++ {
		if back.At(i, 0) != seq.At(i, 0) {
			t.Errorf("round trip changed row %d: %g", i, back.At(i, 0))
		}
	}
}

func TestExclusiveCumsum(t *testing.T) {
	got := ExclusiveCumsum([]int{3, 4, 2})
	want := []int{0, 3, 7}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("cumsum = %v, want %v", got, want)
		}
	}
}

func TestMeanPoolFixedWindows(t *testing.T) {
	seq, _ := ten.FromSlice([]float64{1, 3, 5, 7, 9, 100, 2}, 7, 1)
	mask := []bool{true, true, true, true, true, false, true}
	pooled, pmask, inverse := MeanPoolFixedWindows(seq, mask, 3)

	if pooled.Dim(0) != 3 {
		t.Fatalf("expected 3 windows, got %d", pooled.Dim(0))
	}
	want := []float64{3, 8, 2} // masked row 5 excluded, short last window
	for w, v := range want {
		if pooled.At(w, 0) != v {
			t.Errorf("window %d = %g, want %g", w, pooled.At(w, 0), v)
		}
	}
	for w := 0; w < 3; w++ {
		if !pmask[w] {
			t.Errorf("window %d unexpectedly masked out", w)
		}
	}

	exp := inverse(pooled)
	if exp.Dim(0) != 7 || exp.Dim(1) != 1 {
		t.Fatalf("inverse shape [%d,%d], want [7,1]", exp.Dim(0), exp.Dim(1))
	}
	if exp.At(0, 0) != 3 || exp.At(4, 0) != 8 || exp.At(6, 0) != 2 {
		t.Error("inverse does not repeat pooled values per window")
	}
}

func TestFullPairwiseToWindowed(t *testing.T) {
	m, window, d := 5, 2, 1
	pw := ten.New(m, m, d)
	for i := 0; i < m; i++ {
		for j := 0; j < m; j++ {
			pw.Set(float64(10*i+j), i, j, 0)
		}
	}
	out := FullPairwiseToWindowed(pw, window)
	if out.Dim(0) != 3 || out.Dim(1) != window || out.Dim(2) != 2*window {
		t.Fatalf("windowed dims [%d,%d,%d]", out.Dim(0), out.Dim(1), out.Dim(2))
	}
	// query 2 (window 1, slot 0) sees columns 2..5; column 5 is padding
	if out.At(1, 0, 0, 0) != 22 || out.At(1, 0, 1, 0) != 23 {
		t.Errorf("window 1 keys wrong: %g %g", out.At(1, 0, 0, 0), out.At(1, 0, 1, 0))
	}
	if out.At(1, 0, 3, 0) != 0 {
		t.Errorf("padded key slot not zero: %g", out.At(1, 0, 3, 0))
	}
	if WindowedPairwiseMask(m, window, 1, 3) {
		t.Error("mask claims padded slot is real")
	}
	if !WindowedPairwiseMask(m, window, 1, 2) {
		t.Error("mask rejects a real column")
	}
}
