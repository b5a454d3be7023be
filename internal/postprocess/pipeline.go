// Package postprocess turns closed raw recordings into their final form:
// remuxed into the target container and optionally uploaded.
package postprocess

import (
	"context"
	"fmt"
)

type remuxer interface {
	Remux(ctx context.Context, in string) (string, error)
}

type uploader interface {
	Upload(ctx context.Context, path string) error
}

// Pipeline runs the enabled steps in order. A nil step is skipped.
type Pipeline struct {
	remux  remuxer
	upload uploader
}

// NewPipeline accepts nil for either step.
func NewPipeline(r *Remuxer, u *Telegram) *Pipeline {
	p := &Pipeline{}
	if r != nil {
		p.remux = r
	}
	if u != nil {
		p.upload = u
	}
	return p
}

// Process remuxes path and uploads the result. A failed remux keeps the
// raw file and skips the upload.
func (p *Pipeline) Process(ctx context.Context, path string) error {
	final := path
	if p.remux != nil {
		out, err := p.remux.Remux(ctx, path)
		if err != nil {
			return fmt.Errorf("remux %s: %w", path, err)
		}
		final = out
	}

	if p.upload != nil {
		if err := p.upload.Upload(ctx, final); err != nil {
			return fmt.Errorf("upload %s: %w", final, err)
		}
	}
	return nil
}
