/*
 * model_test.go, part of foldcore.
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
	"errors"
	"math"
	"testing"

	"golang.org/x/exp/rand"

	"github.com/rgallego/foldcore/ten"
)

// testConfig shrinks every dimension so full forward passes stay cheap.
func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.DimAtomInputs = 16
	cfg.DimAtompairInputs = 4
	cfg.DimSingle = 16
	cfg.DimPairwise = 8
	cfg.PairformerDepth = 1
	cfg.PairformerHeads = 2
	cfg.NumRecycles = 0
	cfg.RelPosBins = 8
	cfg.DimMSAInput = 8
	cfg.DimAdditionalMSAFeats = 2
	cfg.DimMSA = 8
	cfg.MSAHeads = 2
	cfg.DimOuterHidden = 4
	cfg.DimTemplateFeats = 8
	cfg.DimTemplate = 8
	cfg.DimToken = 16
	cfg.DimAtom = 8
	cfg.DimFourier = 8
	cfg.AtomHeads = 2
	cfg.TokenHeads = 2
	cfg.AtomWindow = 8
	cfg.TokenTransformerDepth = 1
	cfg.NumDistBins = 10
	cfg.NumPAEBins = 16
	cfg.NumPDEBins = 16
	cfg.NumPLDDTBins = 10
	cfg.NumDistogramBins = 10
	cfg.Sampler.NumSampleSteps = 4
	return cfg
}

func testMockOptions() MockOptions {
	return MockOptions{
		Chains:           2,
		TokensPerChain:   3,
		MaxAtomsPerToken: 4,
		WithCoords:       true,
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	cfg := DefaultConfig()
	cfg.DimSingle = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero dim_single")
	}
	cfg = DefaultConfig()
	cfg.DimToken = 10
	cfg.TokenHeads = 4
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for indivisible head dimension")
	}
	cfg = DefaultConfig()
	cfg.NumRecycles = -1
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for negative num_recycles")
	}
}

func TestSampleSchedule(t *testing.T) {
	for _, karras := range []bool{true, false} {
		opts := DefaultSamplerOptions()
		opts.NumSampleSteps = 16
		opts.KarrasSchedule = karras
		s := NewElucidatedSampler(nil, opts, nil)
		sigmas := s.SampleSchedule()
		if len(sigmas) != 17 {
			t.Fatalf("schedule length %d, want 17", len(sigmas))
		}
		if math.Abs(sigmas[0]-opts.SigmaMax) > 1e-10 {
			t.Errorf("schedule starts at %g, want %g", sigmas[0], opts.SigmaMax)
		}
		if sigmas[16] != 0 {
			t.Errorf("schedule does not end at zero: %g", sigmas[16])
		}
		if math.Abs(sigmas[15]-opts.SigmaMin) > 1e-12 {
			t.Errorf("last nonzero level %g, want %g", sigmas[15], opts.SigmaMin)
		}
		for i := 1; i < len(sigmas); i++ {
			if sigmas[i] >= sigmas[i-1] {
				t.Fatalf("schedule not strictly decreasing at %d (karras=%v)", i, karras)
			}
		}
	}
}

func TestSampleShapes(t *testing.T) {
	cfg := testConfig()
	cfg.Sampler.NumSampleSteps = 16
	model, err := NewModel(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(5))
	in := MockAtomInput(rng, cfg, testMockOptions())

	out, err := model.Sample(in, rng)
	if err != nil {
		t.Fatal(err)
	}
	m, n := in.NumAtoms(), in.NumTokens()
	if out.Coords.NVecs() != m {
		t.Errorf("coords have %d rows, want %d atoms", out.Coords.NVecs(), m)
	}
	if r, c := out.Coords.Dims(); r != m || c != 3 {
		t.Errorf("coords dims (%d,%d), want (%d,3)", r, c, m)
	}
	for i := 0; i < m; i++ {
		for k := 0; k < 3; k++ {
			if math.IsNaN(out.Coords.At(i, k)) || math.IsInf(out.Coords.At(i, k), 0) {
				t.Fatalf("non-finite coordinate at (%d,%d)", i, k)
			}
		}
	}
	if out.Logits.PAE.Dim(0) != n || out.Logits.PAE.Dim(1) != n || out.Logits.PAE.Dim(2) != cfg.NumPAEBins {
		t.Errorf("PAE logits [%d,%d,%d]", out.Logits.PAE.Dim(0), out.Logits.PAE.Dim(1), out.Logits.PAE.Dim(2))
	}
	if out.Logits.PLDDT.Dim(0) != m || out.Logits.PLDDT.Dim(1) != cfg.NumPLDDTBins {
		t.Errorf("pLDDT logits [%d,%d]", out.Logits.PLDDT.Dim(0), out.Logits.PLDDT.Dim(1))
	}
	if out.DistogramLogits.Dim(0) != n || out.DistogramLogits.Dim(2) != cfg.NumDistogramBins {
		t.Errorf("distogram logits [%d,_,%d]", out.DistogramLogits.Dim(0), out.DistogramLogits.Dim(2))
	}
}

func TestZeroSampleStepsIsConfigError(t *testing.T) {
	cfg := testConfig()
	cfg.Sampler.NumSampleSteps = 0
	model, err := NewModel(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(6))
	in := MockAtomInput(rng, cfg, testMockOptions())
	_, err = model.Sample(in, rng)
	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected a ConfigError, got %v", err)
	}
}

func TestDenoisePreservesShape(t *testing.T) {
	cfg := testConfig()
	model, err := NewModel(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(7))
	in := MockAtomInput(rng, cfg, testMockOptions())
	trunk, err := model.RunTrunk(in)
	if err != nil {
		t.Fatal(err)
	}

	m := in.NumAtoms()
	noisy := randCoords(rng, m)
	for _, sigma := range []float64{0.05, 1, 40} {
		denoised := model.Diffusion.Denoise(noisy, sigma, trunk, in)
		if r, c := denoised.Dims(); r != m || c != 3 {
			t.Fatalf("denoised dims (%d,%d) at sigma %g", r, c, sigma)
		}
	}

	// partially masked atoms must not change the output shape
	in.AtomMask[1] = false
	in.AtomMask[m-1] = false
	denoised := model.Diffusion.Denoise(noisy, 1, trunk, in)
	if denoised.NVecs() != m {
		t.Errorf("masked denoise returned %d rows, want %d", denoised.NVecs(), m)
	}

	// precomputed windowed atom-pair features take the same path
	in.AtompairFeats = FullPairwiseToWindowed(in.AtompairFeats, cfg.AtomWindow)
	denoised = model.Diffusion.Denoise(noisy, 1, trunk, in)
	if denoised.NVecs() != m {
		t.Errorf("windowed denoise returned %d rows, want %d", denoised.NVecs(), m)
	}
}

func TestTrainingLoss(t *testing.T) {
	cfg := testConfig()
	model, err := NewModel(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(8))
	opts := testMockOptions()
	opts.NumMSASeqs = 3
	opts.NumTemplates = 2
	opts.WithEmbedIDs = true
	in := MockAtomInput(rng, cfg, opts)

	out, err := model.Loss(in, rng)
	if err != nil {
		t.Fatal(err)
	}
	fields := map[string]float64{
		"denoising":   out.Diffusion.Denoising,
		"smooth_lddt": out.Diffusion.SmoothLDDT,
		"bond":        out.Diffusion.Bond,
		"distogram":   out.Distogram,
		"pae":         out.PAE,
		"resolved":    out.Resolved,
		"total":       out.Total,
	}
	for name, v := range fields {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Errorf("%s loss is not finite: %g", name, v)
		}
		if v < 0 {
			t.Errorf("%s loss is negative: %g", name, v)
		}
	}
	if out.Total <= 0 {
		t.Errorf("total loss %g, want positive", out.Total)
	}
}

func TestEmbedIDInputsAffectForward(t *testing.T) {
	cfg := testConfig()
	model, err := NewModel(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(14))
	opts := testMockOptions()
	opts.WithEmbedIDs = true
	in := MockAtomInput(rng, cfg, opts)
	if in.AtomIDs == nil || in.AtompairIDs == nil || in.AtomParentIDs == nil || in.IsMoleculeMod == nil {
		t.Fatal("mock did not generate the optional id inputs")
	}
	trunk, err := model.RunTrunk(in)
	if err != nil {
		t.Fatal(err)
	}
	noisy := randCoords(rng, in.NumAtoms())
	with := model.Diffusion.Denoise(noisy, 1, trunk, in)

	// dropping the atom-level ids must change the denoiser output
	bare := *in
	bare.AtomIDs = nil
	bare.AtompairIDs = nil
	bare.AtomParentIDs = nil
	without := model.Diffusion.Denoise(noisy, 1, trunk, &bare)
	if maxRowDist(with, without) == 0 {
		t.Error("atom and bond ids have no effect on the denoiser")
	}

	// dropping the modification flags must change the trunk single rep
	noMod := *in
	noMod.IsMoleculeMod = nil
	plain, err := model.RunTrunk(&noMod)
	if err != nil {
		t.Fatal(err)
	}
	same := true
	a, b := trunk.Single.Data(), plain.Single.Data()
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("modification flags have no effect on the trunk")
	}
}

func TestPAELossEmptyInput(t *testing.T) {
	cfg := testConfig()
	model, err := NewModel(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(15))
	in := &AtomInput{AtomIndicesForFrame: [][3]int{}}
	logits := ten.New(1, 1, cfg.NumPAEBins)
	coords := randCoords(rng, 1)
	if got := model.paeLoss(logits, coords, coords, in); got != 0 {
		t.Errorf("aligned-error loss on an empty input is %g, want 0", got)
	}
}

func TestLossWithoutCoordinates(t *testing.T) {
	cfg := testConfig()
	model, err := NewModel(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(9))
	opts := testMockOptions()
	opts.WithCoords = false
	in := MockAtomInput(rng, cfg, opts)
	var cerr *ConfigError
	if _, err := model.Loss(in, rng); !errors.As(err, &cerr) {
		t.Fatalf("expected a ConfigError for missing coordinates, got %v", err)
	}
}

func TestLossBatchAverages(t *testing.T) {
	cfg := testConfig()
	model, err := NewModel(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(10))
	batch := MockBatch(rng, cfg, testMockOptions(), 2)
	avg, per, err := model.LossBatch(batch, rng)
	if err != nil {
		t.Fatal(err)
	}
	if len(per) != 2 {
		t.Fatalf("got %d per-example outputs, want 2", len(per))
	}
	want := (per[0].Total + per[1].Total) / 2
	if math.Abs(avg.Total-want) > 1e-12 {
		t.Errorf("batch average %g, want %g", avg.Total, want)
	}
}

func TestRecycledTrunkShapes(t *testing.T) {
	cfg := testConfig()
	cfg.NumRecycles = 2
	model, err := NewModel(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(11))
	opts := testMockOptions()
	opts.NumMSASeqs = 2
	opts.NumTemplates = 1
	in := MockAtomInput(rng, cfg, opts)
	trunk, err := model.RunTrunk(in)
	if err != nil {
		t.Fatal(err)
	}
	n := in.NumTokens()
	if trunk.Single.Dim(0) != n || trunk.Single.Dim(1) != cfg.DimSingle {
		t.Errorf("single rep [%d,%d]", trunk.Single.Dim(0), trunk.Single.Dim(1))
	}
	if trunk.Pairwise.Dim(0) != n || trunk.Pairwise.Dim(1) != n || trunk.Pairwise.Dim(2) != cfg.DimPairwise {
		t.Errorf("pairwise rep [%d,%d,%d]", trunk.Pairwise.Dim(0), trunk.Pairwise.Dim(1), trunk.Pairwise.Dim(2))
	}
}
