/*
 * confplot_test.go, part of foldcore.
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

package confplot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rgallego/foldcore/ten"
)

func TestPAEPlot(t *testing.T) {
	pae := ten.New(6, 6)
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			pae.Set(float64(i+j), i, j)
		}
	}
	name := filepath.Join(t.TempDir(), "pae")
	if err := PAEPlot(pae, "test", name); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(name + ".png"); err != nil {
		t.Errorf("plot file not written: %v", err)
	}

	if err := PAEPlot(nil, "test", name); err == nil {
		t.Error("expected error for nil matrix")
	}
	if err := PAEPlot(ten.New(3, 4), "test", name); err == nil {
		t.Error("expected error for non-square matrix")
	}
}

func TestPLDDTPlot(t *testing.T) {
	plddt := []float64{0.2, 0.5, 0.9, 0.7, 0.4}
	name := filepath.Join(t.TempDir(), "plddt")
	if err := PLDDTPlot(plddt, "test", name); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(name + ".png"); err != nil {
		t.Errorf("plot file not written: %v", err)
	}
	if err := PLDDTPlot(nil, "test", name); err == nil {
		t.Error("expected error for nil profile")
	}
}
