package proposal

import (
	"github.com/pkg/errors"
	"github.com/swdee/go-detkit"
	"github.com/swdee/go-detkit/geometry"
	"go.uber.org/zap"
)

// GenerateBatch runs the pipeline for every image using up to Workers
// goroutines.  All images share the same anchors.  Results are returned in
// image order.  An image with an invalid size yields an empty result rather
// than failing the batch, any other error fails the batch
func (pl *Pipeline) GenerateBatch(anchors []geometry.Box, imgs []Image) ([]*Result, error) {

	if err := pl.Params.Validate(); err != nil {
		return nil, err
	}

	results := make([]*Result, len(imgs))
	errs := make([]error, len(imgs))

	detkit.ForEach(len(imgs), pl.Params.Workers, func(i int) {
		results[i], errs[i] = pl.generate(anchors, imgs[i])
	})

	for i, err := range errs {

		if err == nil {
			continue
		}

		if !errors.Is(err, detkit.ErrInvalidGeometry) {
			return nil, err
		}

		pl.log.Warn("skipping image", zap.Int("image", i), zap.Error(err))

		results[i] = &Result{
			Proposals: []Proposal{},
			Stats:     Stats{Anchors: len(anchors)},
		}
	}

	return results, nil
}
