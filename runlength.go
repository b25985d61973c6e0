/*
 * runlength.go, part of foldcore.
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

// Run-length utilities tying the token and atom levels together. Atoms
// of one token are contiguous, so the token->atom map is a run-length
// encoding: MoleculeAtomLens[i] atoms belong to token i.

import (
	"github.com/rgallego/foldcore/ten"
)

// ExclusiveCumsum returns the running sum of lens shifted right by one,
// i.e. the absolute atom offset at which each token's atoms start.
func ExclusiveCumsum(lens []int) []int {
	out := make([]int, len(lens))
	acc := 0
	for i, l := range lens {
		out[i] = acc
		acc += l
	}
	return out
}

// MeanPoolWithLens pools an atom-level sequence [m, d] into a token-level
// sequence [len(lens), d], averaging each token's run of atoms. A token
// with length zero pools to zeros.
func MeanPoolWithLens(seq *ten.Dense, lens []int) *ten.Dense {
	d := seq.Dim(1)
	out := ten.New(len(lens), d)
	off := 0
	for i, l := range lens {
		if l == 0 {
			continue
		}
		dst := out.Vec(i)
		for j := off; j < off+l; j++ {
			src := seq.Vec(j)
			for k := 0; k < d; k++ {
				dst[k] += src[k]
			}
		}
		inv := 1 / float64(l)
		for k := 0; k < d; k++ {
			dst[k] *= inv
		}
		off += l
	}
	return out
}

// RepeatInterleaveTo expands a token-level sequence [n, d] to an
// atom-level sequence [totalLen, d], repeating row i lens[i] times. Rows
// past the sum of lens are left at zero, which gives the trailing zero
// padding batched callers rely on. totalLen must be at least sum(lens).
func RepeatInterleaveTo(seq *ten.Dense, lens []int, totalLen int) *ten.Dense {
	if sumInts(lens) > totalLen {
		panic(ten.ErrShape)
	}
	d := seq.Dim(1)
	out := ten.New(totalLen, d)
	row := 0
	for i, l := range lens {
		for r := 0; r < l; r++ {
			copy(out.Vec(row), seq.Vec(i))
			row++
		}
	}
	return out
}

// RepeatInterleave expands a token-level sequence by lens with no padding.
func RepeatInterleave(seq *ten.Dense, lens []int) *ten.Dense {
	return RepeatInterleaveTo(seq, lens, sumInts(lens))
}

// RepeatInterleaveInts expands an int slice by lens.
func RepeatInterleaveInts(a []int, lens []int) []int {
	out := make([]int, 0, sumInts(lens))
	for i, l := range lens {
		for r := 0; r < l; r++ {
			out = append(out, a[i])
		}
	}
	return out
}

// RepeatInterleaveBools expands a bool slice by lens.
func RepeatInterleaveBools(a []bool, lens []int) []bool {
	out := make([]bool, 0, sumInts(lens))
	for i, l := range lens {
		for r := 0; r < l; r++ {
			out = append(out, a[i])
		}
	}
	return out
}

// MeanPoolFixedWindows pools a masked sequence [m, d] into fixed windows
// of the given size: out[w] is the mean of the unmasked rows of window w.
// It returns the pooled sequence [ceil(m/window), d], a pooled mask that
// is true where a window had at least one unmasked row, and an inverse
// function that expands a pooled sequence back to the original length by
// repetition.
func MeanPoolFixedWindows(seq *ten.Dense, mask []bool, window int) (*ten.Dense, []bool, func(*ten.Dense) *ten.Dense) {
	m, d := seq.Dim(0), seq.Dim(1)
	nw := (m + window - 1) / window
	out := ten.New(nw, d)
	outMask := make([]bool, nw)
	for w := 0; w < nw; w++ {
		lo, hi := w*window, minInt((w+1)*window, m)
		dst := out.Vec(w)
		var cnt int
		for j := lo; j < hi; j++ {
			if mask != nil && !mask[j] {
				continue
			}
			src := seq.Vec(j)
			for k := 0; k < d; k++ {
				dst[k] += src[k]
			}
			cnt++
		}
		if cnt > 0 {
			outMask[w] = true
			inv := 1 / float64(cnt)
			for k := 0; k < d; k++ {
				dst[k] *= inv
			}
		}
	}
	inverse := func(pooled *ten.Dense) *ten.Dense {
		exp := ten.New(m, pooled.Dim(1))
		for j := 0; j < m; j++ {
			copy(exp.Vec(j), pooled.Vec(j/window))
		}
		return exp
	}
	return out, outMask, inverse
}

// FullPairwiseToWindowed converts a dense pairwise representation
// [m, m, d] to the windowed layout [nw, window, 2*window, d] consumed by
// local atom attention: the keys of query window w are the columns of
// windows w and w+1, zero-padded past the sequence end.
func FullPairwiseToWindowed(pairwise *ten.Dense, window int) *ten.Dense {
	m, d := pairwise.Dim(0), pairwise.Dim(2)
	nw := (m + window - 1) / window
	out := ten.New(nw, window, 2*window, d)
	for w := 0; w < nw; w++ {
		for qi := 0; qi < window; qi++ {
			i := w*window + qi
			if i >= m {
				break
			}
			for kj := 0; kj < 2*window; kj++ {
				j := w*window + kj
				if j >= m {
					break
				}
				copy(out.Vec(w, qi, kj), pairwise.Vec(i, j))
			}
		}
	}
	return out
}

// WindowedPairwiseMask reports, for the windowed layout above, whether
// key slot kj of window w addresses a real column.
func WindowedPairwiseMask(m, window, w, kj int) bool {
	return w*window+kj < m
}

// MinInt returns the smaller of a and b.
func MinInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// MaxInt returns the larger of a and b.
func MaxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int { return MinInt(a, b) }

func maxInt(a, b int) int { return MaxInt(a, b) }
