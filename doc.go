/*
 * doc.go, part of foldcore.
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

// Package fold implements the generative core of a biomolecular
// structure-prediction model: a coordinate-diffusion denoiser conditioned
// on trunk (single and pairwise) representations, the elucidated-diffusion
// sampler and training losses around it, the confidence heads that score
// predicted structures, and the geometric utilities (rigid frames,
// weighted rigid alignment, smooth lDDT) they are built on.
//
// The package works on well-formed tensors at its boundary. Producing
// those tensors (file parsing, MSA retrieval, batching glue) and consuming
// the outputs (structure export) belong to external collaborators.
// Ranking and model selection live in the score subpackage.
package fold
