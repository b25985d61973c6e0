/*
 * model.go, part of foldcore.
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

	"go.uber.org/zap"
	"golang.org/x/exp/rand"

	"github.com/rgallego/foldcore/ten"
	"github.com/rgallego/foldcore/v3"
)

// Config fixes every dimension and depth of the model. All fields must
// be set; start from DefaultConfig and override.
type Config struct {
	Seed uint64 `yaml:"seed"`

	// input feature widths
	DimAtomInputs           int `yaml:"dim_atom_inputs"`
	DimAtompairInputs       int `yaml:"dim_atompair_inputs"`
	DimAdditionalTokenFeats int `yaml:"dim_additional_token_feats"`

	// embedding table sizes for the optional id inputs; zero disables
	// the corresponding table
	NumAtomEmbeds     int `yaml:"num_atom_embeds"`
	NumAtompairEmbeds int `yaml:"num_atompair_embeds"`
	NumMoleculeMods   int `yaml:"num_molecule_mods"`

	// trunk
	DimSingle       int `yaml:"dim_single"`
	DimPairwise     int `yaml:"dim_pairwise"`
	PairformerDepth int `yaml:"pairformer_depth"`
	PairformerHeads int `yaml:"pairformer_heads"`
	NumRecycles     int `yaml:"num_recycles"`
	RelPosBins      int `yaml:"relpos_bins"`

	// MSA module
	DimMSAInput           int `yaml:"dim_msa_input"`
	DimAdditionalMSAFeats int `yaml:"dim_additional_msa_feats"`
	DimMSA                int `yaml:"dim_msa"`
	MSADepth              int `yaml:"msa_depth"`
	MSAHeads              int `yaml:"msa_heads"`
	DimOuterHidden        int `yaml:"dim_outer_hidden"`

	// template embedder
	DimTemplateFeats int `yaml:"dim_template_feats"`
	DimTemplate      int `yaml:"dim_template"`
	TemplateDepth    int `yaml:"template_depth"`

	// diffusion
	DimToken              int     `yaml:"dim_token"`
	DimAtom               int     `yaml:"dim_atom"`
	DimFourier            int     `yaml:"dim_fourier"`
	AtomHeads             int     `yaml:"atom_heads"`
	TokenHeads            int     `yaml:"token_heads"`
	AtomWindow            int     `yaml:"atom_window"`
	AtomEncoderDepth      int     `yaml:"atom_encoder_depth"`
	AtomDecoderDepth      int     `yaml:"atom_decoder_depth"`
	TokenTransformerDepth int     `yaml:"token_transformer_depth"`
	SigmaData             float64 `yaml:"sigma_data"`

	// confidence
	NumDistBins      int `yaml:"num_dist_bins"`
	ConfidenceDepth  int `yaml:"confidence_depth"`
	NumPAEBins       int `yaml:"num_pae_bins"`
	NumPDEBins       int `yaml:"num_pde_bins"`
	NumPLDDTBins     int `yaml:"num_plddt_bins"`
	NumDistogramBins int `yaml:"num_distogram_bins"`

	Sampler SamplerOptions `yaml:"-"`
	Memory  MemoryPolicy   `yaml:"-"`
}

// DefaultConfig returns a small but complete configuration. Production
// sizes are set through the YAML config of the command-line driver.
func DefaultConfig() *Config {
	return &Config{
		Seed:                  1,
		DimAtomInputs:         77,
		DimAtompairInputs:     5,
		NumAtomEmbeds:         7,
		NumAtompairEmbeds:     3,
		NumMoleculeMods:       4,
		DimSingle:             64,
		DimPairwise:           32,
		PairformerDepth:       2,
		PairformerHeads:       4,
		NumRecycles:           2,
		RelPosBins:            32,
		DimMSAInput:           32,
		DimAdditionalMSAFeats: 2,
		DimMSA:                32,
		MSADepth:              1,
		MSAHeads:              4,
		DimOuterHidden:        8,
		DimTemplateFeats:      44,
		DimTemplate:           16,
		TemplateDepth:         1,
		DimToken:              64,
		DimAtom:               32,
		DimFourier:            64,
		AtomHeads:             4,
		TokenHeads:            4,
		AtomWindow:            27,
		AtomEncoderDepth:      1,
		AtomDecoderDepth:      1,
		TokenTransformerDepth: 2,
		SigmaData:             16,
		NumDistBins:           38,
		ConfidenceDepth:       1,
		NumPAEBins:            64,
		NumPDEBins:            64,
		NumPLDDTBins:          50,
		NumDistogramBins:      38,
		Sampler:               DefaultSamplerOptions(),
		Memory:                DefaultMemoryPolicy(),
	}
}

// Validate checks internal consistency before any weights are
// allocated.
func (cfg *Config) Validate() error {
	pos := []struct {
		name string
		v    int
	}{
		{"dim_atom_inputs", cfg.DimAtomInputs},
		{"dim_atompair_inputs", cfg.DimAtompairInputs},
		{"dim_single", cfg.DimSingle},
		{"dim_pairwise", cfg.DimPairwise},
		{"pairformer_depth", cfg.PairformerDepth},
		{"dim_token", cfg.DimToken},
		{"dim_atom", cfg.DimAtom},
		{"dim_fourier", cfg.DimFourier},
		{"atom_window", cfg.AtomWindow},
		{"num_dist_bins", cfg.NumDistBins},
		{"num_pae_bins", cfg.NumPAEBins},
		{"num_pde_bins", cfg.NumPDEBins},
		{"num_plddt_bins", cfg.NumPLDDTBins},
		{"num_distogram_bins", cfg.NumDistogramBins},
	}
	for _, p := range pos {
		if p.v <= 0 {
			return configErrorf("%s must be positive, got %d", p.name, p.v)
		}
	}
	if cfg.NumRecycles < 0 {
		return configErrorf("num_recycles must not be negative, got %d", cfg.NumRecycles)
	}
	if cfg.NumAtomEmbeds < 0 || cfg.NumAtompairEmbeds < 0 || cfg.NumMoleculeMods < 0 {
		return configErrorf("embedding table sizes must not be negative, got %d/%d/%d",
			cfg.NumAtomEmbeds, cfg.NumAtompairEmbeds, cfg.NumMoleculeMods)
	}
	div := []struct {
		name  string
		dim   int
		heads int
	}{
		{"dim_single/pairformer_heads", cfg.DimSingle, cfg.PairformerHeads},
		{"dim_token/token_heads", cfg.DimToken, cfg.TokenHeads},
		{"dim_atom/atom_heads", cfg.DimAtom, cfg.AtomHeads},
		{"dim_msa/msa_heads", cfg.DimMSA, cfg.MSAHeads},
	}
	for _, d := range div {
		if d.heads <= 0 || d.dim%d.heads != 0 {
			return configErrorf("%s must divide evenly, got %d/%d", d.name, d.dim, d.heads)
		}
	}
	if cfg.SigmaData <= 0 {
		return configErrorf("sigma_data must be positive, got %g", cfg.SigmaData)
	}
	return nil
}

// TrunkOutput is the recycled token representation pair handed to the
// denoiser and the confidence head.
type TrunkOutput struct {
	Single   *ten.Dense // [n, dimSingle]
	Pairwise *ten.Dense // [n, n, dimPairwise]
}

// Model is the full structure-prediction core: input embedding, recycled
// trunk, diffusion sampler and prediction heads.
type Model struct {
	cfg    *Config
	logger *zap.Logger

	SingleEmbed  *Linear // pooled atom feats -> dimSingle
	AddTokenProj *Linear // additional token feats -> dimSingle, may be nil
	PairLeft     *Linear
	PairRight    *Linear
	BondEmbed    []float64
	ModEmbed     *ten.Dense // [numMoleculeMods, dimSingle], nil when disabled
	RelPos       *RelPosEncoding
	MSA          *MSAModule
	Templates    *TemplateEmbedder
	Recycler     *Recycler
	Trunk        *PairformerStack
	Diffusion    *DiffusionModule
	Sampler      *ElucidatedSampler
	Confidence   *ConfidenceHead
	Distogram    *DistogramHead
}

// NewModel builds a model with weights drawn from cfg.Seed. A nil
// logger disables logging.
func NewModel(cfg *Config, logger *zap.Logger) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errDecorate(err, "NewModel")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	m := &Model{
		cfg:         cfg,
		logger:      logger,
		SingleEmbed: NewLinearNoBias(rng, cfg.DimAtomInputs, cfg.DimSingle),
		PairLeft:    NewLinearNoBias(rng, cfg.DimSingle, cfg.DimPairwise),
		PairRight:   NewLinearNoBias(rng, cfg.DimSingle, cfg.DimPairwise),
		BondEmbed:   make([]float64, cfg.DimPairwise),
		RelPos:      NewRelPosEncoding(rng, cfg.RelPosBins, cfg.DimPairwise),
		MSA:         NewMSAModule(rng, cfg),
		Templates:   NewTemplateEmbedder(rng, cfg),
		Recycler:    NewRecycler(rng, cfg),
		Trunk:       NewPairformerStack(rng, cfg, cfg.PairformerDepth),
		Diffusion:   NewDiffusionModule(rng, cfg),
		Confidence:  NewConfidenceHead(rng, cfg),
		Distogram:   NewDistogramHead(rng, cfg),
	}
	if cfg.DimAdditionalTokenFeats > 0 {
		m.AddTokenProj = NewLinearNoBias(rng, cfg.DimAdditionalTokenFeats, cfg.DimSingle)
	}
	for i := range m.BondEmbed {
		m.BondEmbed[i] = rng.NormFloat64() / math.Sqrt(float64(cfg.DimPairwise))
	}
	if cfg.NumMoleculeMods > 0 {
		m.ModEmbed = ten.New(cfg.NumMoleculeMods, cfg.DimSingle)
		scale := 1 / math.Sqrt(float64(cfg.DimSingle))
		data := m.ModEmbed.Data()
		for i := range data {
			data[i] = rng.NormFloat64() * scale
		}
	}
	m.Sampler = NewElucidatedSampler(m.Diffusion, cfg.Sampler, logger)
	return m, nil
}

// Config returns the model configuration.
func (m *Model) Config() *Config { return m.cfg }

// initialEmbeddings builds the cycle-independent single and pairwise
// embeddings of one example.
func (m *Model) initialEmbeddings(in *AtomInput) (*ten.Dense, *ten.Dense) {
	n := in.NumTokens()
	single := m.SingleEmbed.ForwardSeq(MeanPoolWithLens(in.AtomFeats, in.MoleculeAtomLens))
	if m.AddTokenProj != nil && in.AdditionalTokenFeats != nil {
		single.Add(m.AddTokenProj.ForwardSeq(in.AdditionalTokenFeats))
	}
	if m.ModEmbed != nil && in.IsMoleculeMod != nil {
		numMods := m.ModEmbed.Dim(0)
		for i, mods := range in.IsMoleculeMod {
			dst := single.Vec(i)
			for mi, on := range mods {
				if !on || mi >= numMods {
					continue
				}
				emb := m.ModEmbed.Vec(mi)
				for k := range dst {
					dst[k] += emb[k]
				}
			}
		}
	}

	pairwise := ten.New(n, n, m.cfg.DimPairwise)
	left := m.PairLeft.ForwardSeq(single)
	right := m.PairRight.ForwardSeq(single)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			dst := pairwise.Vec(i, j)
			li, rj := left.Vec(i), right.Vec(j)
			for k := range dst {
				dst[k] = li[k] + rj[k]
			}
			if in.TokenBonds != nil && in.TokenBonds[i][j] {
				for k := range dst {
					dst[k] += m.BondEmbed[k]
				}
			}
		}
	}
	m.RelPos.Forward(pairwise, in)
	return single, pairwise
}

// RunTrunk runs the recycled representation trunk on one example. Each
// cycle re-embeds the input, folds in a value copy of the previous
// cycle's output, runs the MSA and template modules and the pairformer
// stack. No gradient relationship survives between cycles: the recycled
// state is data, not a live computation.
func (m *Model) RunTrunk(in *AtomInput) (*TrunkOutput, error) {
	if err := in.Validate(); err != nil {
		return nil, errDecorate(err, "Model.RunTrunk")
	}
	mask := in.TokenMask()
	var prevSingle, prevPairwise *ten.Dense
	var single, pairwise *ten.Dense
	cycles := m.cfg.NumRecycles + 1
	for c := 0; c < cycles; c++ {
		single, pairwise = m.initialEmbeddings(in)
		m.Recycler.Forward(single, pairwise, prevSingle, prevPairwise)
		m.Templates.Forward(pairwise, in)
		m.MSA.Forward(pairwise, single, in, mask)
		single, pairwise = m.Trunk.Forward(single, pairwise, mask)
		prevSingle, prevPairwise = single.Clone(), pairwise.Clone()
		m.logger.Debug("trunk cycle done", zap.Int("cycle", c))
	}
	return &TrunkOutput{Single: single, Pairwise: pairwise}, nil
}

// SampleOutput is one predicted structure with its confidence logits.
type SampleOutput struct {
	Coords          *v3.Matrix
	Logits          *ConfidenceHeadLogits
	DistogramLogits *ten.Dense
	Trunk           *TrunkOutput
}

// Sample predicts a structure for one example: trunk, reverse diffusion,
// then the confidence and distogram heads on the result.
func (m *Model) Sample(in *AtomInput, rng *rand.Rand) (*SampleOutput, error) {
	trunk, err := m.RunTrunk(in)
	if err != nil {
		return nil, err
	}
	coords, err := m.Sampler.Sample(trunk, in, rng)
	if err != nil {
		return nil, errDecorate(err, "Model.Sample")
	}
	logits := m.Confidence.Forward(trunk.Single, trunk.Pairwise, coords, in)
	disto := m.Distogram.Forward(trunk.Pairwise)
	return &SampleOutput{Coords: coords, Logits: logits, DistogramLogits: disto, Trunk: trunk}, nil
}

// SampleBatch predicts structures for every element of a batch.
func (m *Model) SampleBatch(b *BatchedAtomInput, rng *rand.Rand) ([]*SampleOutput, error) {
	out := make([]*SampleOutput, 0, b.Len())
	for _, in := range b.Elements {
		s, err := m.Sample(in, rng)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// TrainOutput itemizes the training objective of one example.
type TrainOutput struct {
	Diffusion LossBreakdown
	Distogram float64
	PAE       float64
	Resolved  float64
	Total     float64
}

// Loss computes the full training objective for one example with ground
// truth coordinates: the diffusion losses plus cross-entropies of the
// distogram, aligned-error and resolved heads against targets derived
// from the ground truth.
func (m *Model) Loss(in *AtomInput, rng *rand.Rand) (*TrainOutput, error) {
	trunk, err := m.RunTrunk(in)
	if err != nil {
		return nil, err
	}
	bd, denoised, truth, err := m.Sampler.Loss(trunk, in, rng)
	if err != nil {
		return nil, errDecorate(err, "Model.Loss")
	}
	out := &TrainOutput{Diffusion: bd}

	disto := m.Distogram.Forward(trunk.Pairwise)
	out.Distogram = m.distogramLoss(disto, truth, in)

	logits := m.Confidence.Forward(trunk.Single, trunk.Pairwise, denoised, in)
	if in.AtomIndicesForFrame != nil {
		out.PAE = m.paeLoss(logits.PAE, denoised, truth, in)
	}
	if in.ResolvedLabels != nil {
		out.Resolved = resolvedLoss(logits.Resolved, in.ResolvedLabels)
	}
	out.Total = bd.Total + out.Distogram + out.PAE + out.Resolved
	return out, nil
}

// LossBatch averages the objective over a batch.
func (m *Model) LossBatch(b *BatchedAtomInput, rng *rand.Rand) (*TrainOutput, []*TrainOutput, error) {
	if b.Len() == 0 {
		return nil, nil, configErrorf("empty batch")
	}
	per := make([]*TrainOutput, 0, b.Len())
	avg := &TrainOutput{}
	for _, in := range b.Elements {
		o, err := m.Loss(in, rng)
		if err != nil {
			return nil, nil, err
		}
		per = append(per, o)
		avg.Total += o.Total
		avg.Distogram += o.Distogram
		avg.PAE += o.PAE
		avg.Resolved += o.Resolved
		avg.Diffusion.Total += o.Diffusion.Total
		avg.Diffusion.Denoising += o.Diffusion.Denoising
		avg.Diffusion.SmoothLDDT += o.Diffusion.SmoothLDDT
		avg.Diffusion.Bond += o.Diffusion.Bond
	}
	inv := 1 / float64(b.Len())
	avg.Total *= inv
	avg.Distogram *= inv
	avg.PAE *= inv
	avg.Resolved *= inv
	avg.Diffusion.Total *= inv
	avg.Diffusion.Denoising *= inv
	avg.Diffusion.SmoothLDDT *= inv
	avg.Diffusion.Bond *= inv
	return avg, per, nil
}

// distogramLoss is the cross-entropy of the distogram head against the
// binned ground-truth distances between representative atoms.
func (m *Model) distogramLoss(logits *ten.Dense, truth *v3.Matrix, in *AtomInput) float64 {
	n := in.NumTokens()
	var loss, count float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			ai, aj := repAtom(in, i), repAtom(in, j)
			if ai < 0 || aj < 0 {
				continue
			}
			bin := clampInt(int((rowDist(truth, ai, aj)-distBinMin)/distBinStep), 0, m.cfg.NumDistogramBins-1)
			loss += crossEntropy(logits.Vec(i, j), bin)
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return loss / count
}

// paeLoss is the cross-entropy of the aligned-error head against the
// binned frame-aligned errors of the denoised structure.
func (m *Model) paeLoss(logits *ten.Dense, denoised, truth *v3.Matrix, in *AtomInput) float64 {
	n := in.NumTokens()
	if n == 0 {
		return 0
	}
	predFrames := FramesFromThreePoints(denoised, in.AtomIndicesForFrame)
	trueFrames := FramesFromThreePoints(truth, in.AtomIndicesForFrame)

	predRep := v3.Zeros(n)
	trueRep := v3.Zeros(n)
	for i := 0; i < n; i++ {
		a := repAtom(in, i)
		if a < 0 {
			a = 0
		}
		predRep.SetVecs(denoised.VecView(a), []int{i})
		trueRep.SetVecs(truth.VecView(a), []int{i})
	}
	errs := ComputeAlignmentError(predRep, trueRep, predFrames, trueFrames)

	const paeBinWidth = 0.5
	var loss, count float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			bin := clampInt(int(errs.At(i, j)/paeBinWidth), 0, m.cfg.NumPAEBins-1)
			loss += crossEntropy(logits.Vec(i, j), bin)
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return loss / count
}

// resolvedLoss is the cross-entropy of the resolved head against the
// per-atom experimentally-resolved labels.
func resolvedLoss(logits *ten.Dense, labels []int) float64 {
	var loss float64
	mTot := logits.Dim(0)
	for i := 0; i < mTot; i++ {
		loss += crossEntropy(logits.Vec(i), labels[i])
	}
	return loss / float64(mTot)
}

// crossEntropy is -log softmax(logits)[class].
func crossEntropy(logits []float64, class int) float64 {
	maxv := logits[0]
	for _, v := range logits {
		if v > maxv {
			maxv = v
		}
	}
	var sum float64
	for _, v := range logits {
		sum += math.Exp(v - maxv)
	}
	return math.Log(sum) - (logits[class] - maxv)
}
