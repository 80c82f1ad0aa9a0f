package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"

	"github.com/swdee/go-detkit/anchor"
	"github.com/swdee/go-detkit/coder"
	"github.com/swdee/go-detkit/config"
	"github.com/swdee/go-detkit/geometry"
	"github.com/swdee/go-detkit/proposal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// disable logging timestamps
	log.SetFlags(0)

	// read in cli flags
	cfgFile := flag.String("c", "", "YAML config file, defaults are used when empty")
	featH := flag.Int("fh", 38, "Feature map height in cells")
	featW := flag.Int("fw", 50, "Feature map width in cells")
	images := flag.Int("n", 4, "Number of synthetic images in the batch")
	show := flag.Int("show", 5, "Number of proposals to print per image")
	seed := flag.Int64("seed", 1, "Random seed for the synthetic network output")
	debug := flag.Bool("debug", false, "Enable debug logging of the pipeline stages")

	flag.Parse()

	logger, err := newLogger(*debug)

	if err != nil {
		log.Fatal("Error creating logger: ", err)
	}

	defer logger.Sync()

	cfg := config.Default()

	if *cfgFile != "" {
		if cfg, err = config.Load(*cfgFile); err != nil {
			logger.Fatal("Error loading config", zap.Error(err))
		}
	}

	// generate the anchors for the feature map
	grid, err := anchor.Generate(*featH, *featW, cfg.AnchorParams())

	if err != nil {
		logger.Fatal("Error generating anchors", zap.Error(err))
	}

	logger.Info("generated anchors",
		zap.Int("height", grid.Height),
		zap.Int("width", grid.Width),
		zap.Int("perCell", grid.PerCell),
		zap.Int("total", grid.Len()),
	)

	imgH := float32(*featH) * cfg.Stride
	imgW := float32(*featW) * cfg.Stride

	// fake network output around a few objects in each image
	rng := rand.New(rand.NewSource(*seed))
	batch := make([]proposal.Image, *images)

	for i := range batch {
		batch[i] = synthesize(rng, grid.Boxes, imgH, imgW, cfg.CoderParams())
	}

	pl := proposal.NewPipeline(cfg.ProposalParams())
	pl.SetLogger(logger)

	results, err := pl.GenerateBatch(grid.Boxes, batch)

	if err != nil {
		logger.Fatal("Proposal generation failed", zap.Error(err))
	}

	for i, res := range results {

		logger.Info("image proposals",
			zap.Int("image", i),
			zap.Int("proposals", len(res.Proposals)),
			zap.Int("suppressed", res.Stats.Suppressed),
			zap.Int("too_small", res.Stats.TooSmall),
		)

		for j, p := range res.Proposals {
			if j >= *show {
				break
			}

			fmt.Printf("image %d: %v score %.3f anchor %d\n", i, p.Box, p.Score, p.AnchorIndex)
		}
	}
}

// newLogger returns a development logger with ISO8601 timestamps
func newLogger(debug bool) (*zap.Logger, error) {

	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if !debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

// synthesize places up to three random objects in an image and returns anchor
// scores equal to the best overlap with an object and deltas regressing each
// anchor onto that object with some noise
func synthesize(rng *rand.Rand, anchors []geometry.Box, imgH, imgW float32,
	cp coder.Params) proposal.Image {

	objects := make([]geometry.Box, 1+rng.Intn(3))

	for i := range objects {
		w := imgW * (0.1 + 0.3*rng.Float32())
		h := imgH * (0.1 + 0.3*rng.Float32())
		x := (imgW - w) * rng.Float32()
		y := (imgH - h) * rng.Float32()
		objects[i] = geometry.NewBox(x, y, x+w, y+h)
	}

	overlaps := geometry.BoxOverlaps(anchors, objects, cp.Normalized, 1)

	img := proposal.Image{
		Height: imgH,
		Width:  imgW,
		Scale:  1,
		Scores: make([]float32, len(anchors)),
		Deltas: make([][4]float32, len(anchors)),
	}

	for i, a := range anchors {

		j, v := overlaps.RowMax(i)
		img.Scores[i] = v

		if j < 0 {
			continue
		}

		d, err := coder.Encode(a, objects[j], cp)

		if err != nil {
			continue
		}

		for k := range d {
			d[k] += 0.05 * float32(rng.NormFloat64())
		}

		img.Deltas[i] = d
	}

	return img
}
