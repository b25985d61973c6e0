/*
 * confplot.go, part of foldcore.
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

// Package confplot renders confidence metrics to image files: the
// predicted-aligned-error matrix as a heat map and the per-atom pLDDT
// profile as a line plot.
package confplot

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/rgallego/foldcore/ten"
)

// paeGrid adapts a square expected-error matrix to the heat map
// interface.
type paeGrid struct {
	m *ten.Dense
}

func (g paeGrid) Dims() (int, int)   { return g.m.Dim(1), g.m.Dim(0) }
func (g paeGrid) X(c int) float64    { return float64(c) }
func (g paeGrid) Y(r int) float64    { return float64(r) }
func (g paeGrid) Z(c, r int) float64 { return g.m.At(r, c) }

// PAEPlot saves a heat map of the expected aligned error [n, n] to
// plotname.png. Values are in Angstrom, tokens on both axes.
func PAEPlot(pae *ten.Dense, title, plotname string) error {
	if pae == nil {
		return fmt.Errorf("confplot: given nil aligned-error matrix")
	}
	if pae.Rank() != 2 || pae.Dim(0) != pae.Dim(1) {
		return fmt.Errorf("confplot: aligned-error matrix must be square")
	}
	p := plot.New()
	p.Title.Padding = 3 * vg.Millimeter
	p.Title.Text = title
	p.X.Label.Text = "Scored token"
	p.Y.Label.Text = "Aligned token"

	pal := moreland.SmoothBlueRed().Palette(255)
	h := plotter.NewHeatMap(paeGrid{m: pae}, pal)
	p.Add(h)

	filename := fmt.Sprintf("%s.png", plotname)
	return p.Save(5*vg.Inch, 5*vg.Inch, filename)
}

// PLDDTPlot saves the per-atom expected confidence profile, values in
// [0, 1], to plotname.png.
func PLDDTPlot(plddt []float64, title, plotname string) error {
	if plddt == nil {
		return fmt.Errorf("confplot: given nil confidence profile")
	}
	p := plot.New()
	p.Title.Padding = 3 * vg.Millimeter
	p.Title.Text = title
	p.X.Label.Text = "Atom"
	p.Y.Label.Text = "pLDDT"
	p.Y.Min = 0
	p.Y.Max = 1
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(plddt))
	for i, v := range plddt {
		pts[i].X = float64(i)
		pts[i].Y = v
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	p.Add(line)

	filename := fmt.Sprintf("%s.png", plotname)
	return p.Save(7*vg.Inch, 3*vg.Inch, filename)
}
