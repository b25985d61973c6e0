/*
 * kernels.go, part of foldcore.
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

	"gonum.org/v1/gonum/floats"
)

// Softmax replaces x with softmax(x), numerically stabilized by the row
// maximum. A slice of all -Inf (fully masked) becomes uniform zeros.
func Softmax(x []float64) {
	if len(x) == 0 {
		return
	}
	max := floats.Max(x)
	if math.IsInf(max, -1) {
		for i := range x {
			x[i] = 0
		}
		return
	}
	var sum float64
	for i, v := range x {
		e := math.Exp(v - max)
		x[i] = e
		sum += e
	}
	if sum == 0 {
		return
	}
	for i := range x {
		x[i] /= sum
	}
}

// Sigmoid returns 1/(1+exp(-x)).
func Sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

// SiLU returns x*sigmoid(x).
func SiLU(x float64) float64 { return x * Sigmoid(x) }

// ReLU returns max(x, 0).
func ReLU(x float64) float64 { return math.Max(x, 0) }

// LayerNorm normalizes x in place to zero mean and unit variance and then
// applies the affine parameters gamma and beta, which may be nil.
func LayerNorm(x, gamma, beta []float64, eps float64) {
	n := float64(len(x))
	if n == 0 {
		return
	}
	mean := floats.Sum(x) / n
	var ss float64
	for _, v := range x {
		d := v - mean
		ss += d * d
	}
	inv := 1 / math.Sqrt(ss/n+eps)
	for i := range x {
		x[i] = (x[i] - mean) * inv
		if gamma != nil {
			x[i] *= gamma[i]
		}
		if beta != nil {
			x[i] += beta[i]
		}
	}
}

// MaskedMean returns the mean of x over the positions where mask is true.
// An all-false mask yields 0.
func MaskedMean(x []float64, mask []bool) float64 {
	var sum float64
	var n int
	for i, v := range x {
		if mask == nil || mask[i] {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
