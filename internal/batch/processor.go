// Package batch runs many prompts against the Claude API concurrently while
// preserving the input order of results.
package batch

import (
	"context"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/optisuite/optisuite/internal/claude"
)

// Messenger is the slice of the Claude client the processor needs.
type Messenger interface {
	Messages(ctx context.Context, req claude.MessageRequest) (*claude.MessageResponse, error)
}

// Options tunes a batch run.
type Options struct {
	// System is an optional system prompt applied to every item.
	System string

	// MaxWorkers caps concurrency. Values <= 0 fall back to 5.
	MaxWorkers int
}

// Result pairs a prompt's position with its outcome. Exactly one of Response
// and Err is set.
type Result struct {
	Index    int                     `json:"index"`
	Response *claude.MessageResponse `json:"response,omitempty"`
	Err      error                   `json:"-"`
}

// Process sends every prompt through the messenger with bounded concurrency.
// The returned slice has one entry per prompt, in input order. A failed item
// carries its error at its index and never aborts the rest of the batch.
func Process(ctx context.Context, messenger Messenger, prompts []string, opts Options) []Result {
	workers := opts.MaxWorkers
	if workers <= 0 {
		workers = 5
	}

	log.Infof("starting batch processing of %d prompts with %d workers", len(prompts), workers)

	results := make([]Result, len(prompts))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	for i, prompt := range prompts {
		i, prompt := i, prompt
		group.Go(func() error {
			resp, err := messenger.Messages(groupCtx, claude.MessageRequest{
				Prompt: prompt,
				System: opts.System,
			})
			if err != nil {
				log.WithError(err).Errorf("failed to process prompt %d", i)
			}
			results[i] = Result{Index: i, Response: resp, Err: err}
			// Item failures are recorded, not propagated, so the group keeps going.
			return nil
		})
	}

	_ = group.Wait()
	return results
}
