// Package config loads the detection options from YAML and converts them
// into the parameter structs of each package
package config

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/swdee/go-detkit"
	"github.com/swdee/go-detkit/anchor"
	"github.com/swdee/go-detkit/coder"
	"github.com/swdee/go-detkit/matcher"
	"github.com/swdee/go-detkit/mining"
	"github.com/swdee/go-detkit/nms"
	"github.com/swdee/go-detkit/proposal"
	"github.com/swdee/go-detkit/target"
	"gopkg.in/yaml.v3"
)

// Config holds every recognized option.  Keys missing from a YAML document
// keep their Default value
type Config struct {
	// suppression
	IoUThreshold    float32 `yaml:"iou_threshold"`
	ScoreThreshold  float32 `yaml:"score_threshold"`
	TopK            int     `yaml:"top_k"`
	NMSEta          float32 `yaml:"nms_eta"`
	KeepTopK        int     `yaml:"keep_top_k"`
	BackgroundLabel int     `yaml:"background_label"`

	// matching
	MatchType                string  `yaml:"match_type"`
	OptimalMatch             bool    `yaml:"optimal_match"`
	PositiveOverlapThreshold float32 `yaml:"positive_overlap_threshold"`
	NegativeOverlapThreshold float32 `yaml:"negative_overlap_threshold"`

	// hard example mining
	NegativeToPositiveRatio float32 `yaml:"negative_to_positive_ratio"`
	NegOverlap              float32 `yaml:"neg_overlap"`
	SampleSize              int     `yaml:"sample_size"`

	// anchors and box coding
	AnchorScales []float32 `yaml:"anchor_scales"`
	AnchorRatios []float32 `yaml:"anchor_ratios"`
	Stride       float32   `yaml:"stride"`
	Offset       float32   `yaml:"offset"`
	Variances    []float32 `yaml:"variances"`
	Normalized   bool      `yaml:"normalized"`

	// proposals
	MinSize     float32 `yaml:"min_size"`
	PreNMSTopN  int     `yaml:"pre_nms_top_n"`
	PostNMSTopN int     `yaml:"post_nms_top_n"`

	Workers int `yaml:"workers"`
}

// Default returns the configuration of a pixel space region proposal setup
func Default() *Config {

	ap := anchor.DefaultParams()
	pp := proposal.DefaultParams()
	mp := matcher.DefaultParams()
	mn := mining.DefaultParams()
	np := nms.DefaultMultiClassParams()

	return &Config{
		IoUThreshold:             pp.NMSThreshold,
		ScoreThreshold:           pp.ScoreThreshold,
		TopK:                     pp.PostNMSTopN,
		NMSEta:                   pp.NMSEta,
		KeepTopK:                 np.KeepTopK,
		BackgroundLabel:          np.BackgroundLabel,
		MatchType:                mp.Type.String(),
		OptimalMatch:             mp.Optimal,
		PositiveOverlapThreshold: mp.PositiveThreshold,
		NegativeOverlapThreshold: mp.NegativeThreshold,
		NegativeToPositiveRatio:  mn.NegPosRatio,
		NegOverlap:               mn.NegOverlap,
		SampleSize:               mn.SampleSize,
		AnchorScales:             ap.Scales,
		AnchorRatios:             ap.Ratios,
		Stride:                   ap.Stride,
		Offset:                   ap.Offset,
		Variances:                ap.Variances[:],
		Normalized:               pp.Coder.Normalized,
		MinSize:                  pp.MinSize,
		PreNMSTopN:               pp.PreNMSTopN,
		PostNMSTopN:              pp.PostNMSTopN,
		Workers:                  pp.Workers,
	}
}

// Load reads and validates the YAML configuration file at path
func Load(path string) (*Config, error) {

	data, err := os.ReadFile(path)

	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}

	c, err := Parse(data)

	if err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}

	return c, nil
}

// Parse decodes a YAML document over the Default configuration and validates
// the result.  Unknown keys are rejected
func Parse(data []byte) (*Config, error) {

	c := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(c); err != nil && err != io.EOF {
		return nil, errors.Wrapf(detkit.ErrConfiguration, "decoding yaml: %v", err)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// Marshal returns the configuration as a YAML document
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate checks every option by building the parameters of each package
func (c *Config) Validate() error {

	if len(c.Variances) != 4 {
		return detkit.Configf("variances must hold 4 values, got %d", len(c.Variances))
	}

	if err := c.AnchorParams().Validate(); err != nil {
		return err
	}

	if err := c.MultiClassParams().Validate(); err != nil {
		return err
	}

	if err := c.ProposalParams().Validate(); err != nil {
		return err
	}

	if _, err := c.TargetParams(); err != nil {
		return err
	}

	if c.Workers < 1 {
		return detkit.Configf("workers must be at least 1, got %d", c.Workers)
	}

	return nil
}

// variances returns the four configured variances
func (c *Config) variances() [4]float32 {

	var v [4]float32
	copy(v[:], c.Variances)

	return v
}

// AnchorParams returns the anchor grid parameters
func (c *Config) AnchorParams() anchor.Params {
	return anchor.Params{
		Stride:    c.Stride,
		Offset:    c.Offset,
		Scales:    c.AnchorScales,
		Ratios:    c.AnchorRatios,
		Variances: c.variances(),
	}
}

// CoderParams returns the box coder parameters
func (c *Config) CoderParams() coder.Params {

	p := coder.DefaultParams()
	p.Variances = c.variances()
	p.Normalized = c.Normalized

	return p
}

// NMSParams returns the single class suppression parameters
func (c *Config) NMSParams() nms.Params {
	return nms.Params{
		IoUThreshold:   c.IoUThreshold,
		ScoreThreshold: c.ScoreThreshold,
		TopK:           c.TopK,
		PreTopK:        c.PreNMSTopN,
		Eta:            c.NMSEta,
	}
}

// MultiClassParams returns the multi class suppression parameters
func (c *Config) MultiClassParams() nms.MultiClassParams {
	return nms.MultiClassParams{
		Params:          c.NMSParams(),
		BackgroundLabel: c.BackgroundLabel,
		KeepTopK:        c.KeepTopK,
		Workers:         c.Workers,
	}
}

// MatchParams returns the matcher parameters
func (c *Config) MatchParams() (matcher.Params, error) {

	p := matcher.DefaultParams()

	t, err := matcher.ParseMatchType(c.MatchType)

	if err != nil {
		return p, err
	}

	p.Type = t
	p.Optimal = c.OptimalMatch
	p.PositiveThreshold = c.PositiveOverlapThreshold
	p.NegativeThreshold = c.NegativeOverlapThreshold

	return p, p.Validate()
}

// MiningParams returns the hard example mining parameters
func (c *Config) MiningParams() mining.Params {
	return mining.Params{
		NegPosRatio: c.NegativeToPositiveRatio,
		NegOverlap:  c.NegOverlap,
		SampleSize:  c.SampleSize,
	}
}

// ProposalParams returns the proposal pipeline parameters
func (c *Config) ProposalParams() proposal.Params {
	return proposal.Params{
		PreNMSTopN:     c.PreNMSTopN,
		PostNMSTopN:    c.PostNMSTopN,
		NMSThreshold:   c.IoUThreshold,
		NMSEta:         c.NMSEta,
		MinSize:        c.MinSize,
		ScoreThreshold: c.ScoreThreshold,
		Coder:          c.CoderParams(),
		Workers:        c.Workers,
	}
}

// TargetParams returns the training target parameters
func (c *Config) TargetParams() (target.Params, error) {

	mp, err := c.MatchParams()

	if err != nil {
		return target.Params{}, err
	}

	bg := c.BackgroundLabel

	// suppression skips no class when the label is -1, targets still need
	// a class for negatives
	if bg < 0 {
		bg = 0
	}

	p := target.Params{
		Match:           mp,
		Mining:          c.MiningParams(),
		Coder:           c.CoderParams(),
		BackgroundLabel: bg,
		Workers:         c.Workers,
	}

	return p, p.Validate()
}
