package captionr

import (
	"context"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// Result is the outcome of captioning one image.
type Result struct {
	Path    string
	Caption string
	Err     error
}

// Run captions paths with up to Workers images in flight. A failing image is
// logged and recorded in its Result; it never stops the batch.
func (cr *Captionr) Run(ctx context.Context, paths []string) []Result {
	if cr.c.Preview {
		klog.Infof("PREVIEW MODE ENABLED. No caption files will be written.")
	}

	results := make([]Result, len(paths))
	var g errgroup.Group
	g.SetLimit(max(1, cr.c.Workers))

	for i, p := range paths {
		g.Go(func() error {
			results[i] = Result{Path: p}
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}

			text, err := cr.Process(ctx, p)
			if err != nil {
				klog.Errorf("Exception occurred processing %s: %v", p, err)
				results[i].Err = err
				return nil
			}
			results[i].Caption = text
			return nil
		})
	}

	_ = g.Wait()
	return results
}
