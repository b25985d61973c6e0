/*
 * frames.go, part of foldcore.
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

	"golang.org/x/exp/rand"

	"github.com/rgallego/foldcore/ten"
	"github.com/rgallego/foldcore/v3"
)

// frameEps stabilizes frame construction against coincident or collinear
// reference points.
const frameEps = 1e-8

// RigidFromThreePoints builds a local orthonormal frame from three points
// given as 1x3 row vectors: the first axis lies along (p3-p2) normalized,
// the second is (p1-p2) orthogonalized against the first, the third is
// their cross product, and the origin is p2. Degenerate point triples
// (coincident or collinear) are epsilon-stabilized rather than rejected;
// the resulting frame is then arbitrary but finite.
func RigidFromThreePoints(p1, p2, p3 *v3.Matrix) v3.Frame {
	a := v3.Zeros(1)
	a.SubVec(p3, p2)
	normalize(a)
	b := v3.Zeros(1)
	b.SubVec(p1, p2)
	// Gram-Schmidt: remove the component of b along a
	dot := a.At(0, 0)*b.At(0, 0) + a.At(0, 1)*b.At(0, 1) + a.At(0, 2)*b.At(0, 2)
	for k := 0; k < 3; k++ {
		b.Set(0, k, b.At(0, k)-dot*a.At(0, k))
	}
	normalize(b)
	c := v3.Zeros(1)
	c.Cross(a, b)
	rot := v3.Zeros(3)
	for k := 0; k < 3; k++ {
		rot.Set(0, k, a.At(0, k))
		rot.Set(1, k, b.At(0, k))
		rot.Set(2, k, c.At(0, k))
	}
	origin := v3.Zeros(1)
	origin.Copy(p2.Dense)
	return v3.Frame{Rot: rot, Origin: origin}
}

func normalize(v *v3.Matrix) {
	n := math.Sqrt(v.At(0, 0)*v.At(0, 0)+v.At(0, 1)*v.At(0, 1)+v.At(0, 2)*v.At(0, 2)) + frameEps
	v.Scale(1/n, v.Dense)
}

// FramesFromThreePoints builds one frame per index triple, each triple
// holding absolute row indexes into coords.
func FramesFromThreePoints(coords *v3.Matrix, idx [][3]int) []v3.Frame {
	frames := make([]v3.Frame, len(idx))
	for i, t := range idx {
		frames[i] = RigidFromThreePoints(coords.VecView(t[0]), coords.VecView(t[1]), coords.VecView(t[2]))
	}
	return frames
}

// ExpressCoordinatesInFrame re-expresses every coordinate of coords in
// the local basis of the corresponding frame. A single frame broadcasts
// over all rows; otherwise one frame per row is required.
func ExpressCoordinatesInFrame(coords *v3.Matrix, frames []v3.Frame) *v3.Matrix {
	n := coords.NVecs()
	out := v3.Zeros(n)
	if len(frames) == 1 {
		frames[0].Express(out, coords)
		return out
	}
	if len(frames) != n {
		panic(v3.ErrShape)
	}
	row := v3.Zeros(1)
	for i := 0; i < n; i++ {
		frames[i].Express(row, coords.VecView(i))
		out.SetVecs(row, []int{i})
	}
	return out
}

// ComputeAlignmentError returns the n x n matrix of aligned errors: entry
// (i,j) is the distance between point j expressed in frame i of the
// prediction and point j expressed in frame i of the ground truth. This
// is the supervision target of the predicted-aligned-error head.
func ComputeAlignmentError(predCoords, trueCoords *v3.Matrix, predFrames, trueFrames []v3.Frame) *ten.Dense {
	n := predCoords.NVecs()
	if trueCoords.NVecs() != n || len(predFrames) != len(trueFrames) {
		panic(v3.ErrShape)
	}
	out := ten.New(len(predFrames), n)
	predLocal := v3.Zeros(n)
	trueLocal := v3.Zeros(n)
	for i := range predFrames {
		predFrames[i].Express(predLocal, predCoords)
		trueFrames[i].Express(trueLocal, trueCoords)
		row := out.Vec(i)
		for j := 0; j < n; j++ {
			dx := predLocal.At(j, 0) - trueLocal.At(j, 0)
			dy := predLocal.At(j, 1) - trueLocal.At(j, 1)
			dz := predLocal.At(j, 2) - trueLocal.At(j, 2)
			row[j] = math.Sqrt(dx*dx + dy*dy + dz*dz)
		}
	}
	return out
}

// CentreRandomAugmentation centers coords at the origin and applies a
// uniformly random rotation followed by a small random translation drawn
// from transScale*N(0,1) per component. Used as training-time data
// augmentation before alignment-based losses.
func CentreRandomAugmentation(coords *v3.Matrix, rng *rand.Rand, transScale float64) *v3.Matrix {
	n := coords.NVecs()
	centroid := v3.Zeros(1)
	for i := 0; i < n; i++ {
		for k := 0; k < 3; k++ {
			centroid.Set(0, k, centroid.At(0, k)+coords.At(i, k))
		}
	}
	centroid.Scale(1/float64(n), centroid.Dense)
	out := v3.Zeros(n)
	out.SubVec(coords, centroid)
	rot := v3.RandomRotation(rng)
	out.Mul(out, rot.Dense.T())
	trans := v3.Zeros(1)
	for k := 0; k < 3; k++ {
		trans.Set(0, k, rng.NormFloat64()*transScale)
	}
	out.AddVec(out, trans)
	return out
}
