/*
 * report.go, part of foldcore.
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

// Package report serializes prediction results, coordinates plus
// ranking scores, to JSON for downstream consumption.
package report

import (
	"io"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/rgallego/foldcore"
	"github.com/rgallego/foldcore/score"
)

// Prediction is one structure with its scores.
type Prediction struct {
	ID              string       `json:"id"`
	NumTokens       int          `json:"num_tokens"`
	NumAtoms        int          `json:"num_atoms"`
	PTM             float64      `json:"ptm"`
	IPTM            float64      `json:"iptm"`
	FullComplex     float64      `json:"full_complex"`
	SingleChain     float64      `json:"single_chain"`
	Interface       float64      `json:"interface,omitempty"`
	ModifiedResidue float64      `json:"modified_residue,omitempty"`
	PLDDT           []float64    `json:"plddt"`
	Coords          [][3]float64 `json:"coords"`
}

// Report bundles the predictions of one run.
type Report struct {
	CreatedAt   time.Time    `json:"created_at"`
	Predictions []Prediction `json:"predictions"`
}

// FromSamples assembles a report from sampled structures and their
// ranking scores. outs and bundle must come from the same batch.
func FromSamples(outs []*fold.SampleOutput, batch *fold.BatchedAtomInput, bundle *score.RankingScoreBundle) (*Report, error) {
	if len(outs) != batch.Len() {
		return nil, fold.ShapeErrorf("%d sample outputs for %d batch elements", len(outs), batch.Len())
	}
	rep := &Report{CreatedAt: time.Now().UTC()}
	for e, s := range outs {
		in := batch.Elements[e]
		m := in.NumAtoms()
		coords := make([][3]float64, m)
		for i := 0; i < m; i++ {
			coords[i] = [3]float64{s.Coords.At(i, 0), s.Coords.At(i, 1), s.Coords.At(i, 2)}
		}
		rep.Predictions = append(rep.Predictions, Prediction{
			ID:              uuid.New().String(),
			NumTokens:       in.NumTokens(),
			NumAtoms:        m,
			PTM:             bundle.PTM[e],
			IPTM:            bundle.IPTM[e],
			FullComplex:     bundle.FullComplex[e],
			SingleChain:     bundle.SingleChain[e],
			Interface:       bundle.Interface[e],
			ModifiedResidue: bundle.ModifiedResidue[e],
			PLDDT:           score.ExpectedPLDDT(s.Logits.PLDDT),
			Coords:          coords,
		})
	}
	return rep, nil
}

// Write serializes the report as indented JSON.
func (r *Report) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// Read deserializes a report.
func Read(r io.Reader) (*Report, error) {
	rep := new(Report)
	if err := json.NewDecoder(r).Decode(rep); err != nil {
		return nil, err
	}
	return rep, nil
}
