package evaluate

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/dpopsuev/visor/internal/logging"
	"github.com/dpopsuev/visor/internal/workspace"
)

// Case is one unit of batch evaluation: a rendered capture with its
// optional reference image and diagram source.
type Case struct {
	Index         int
	Name          string
	GeneratedPath string
	ReferencePath string
	SourcePath    string
	Iteration     int
}

// CaseResult is produced by a batch worker. A failed load leaves Result
// nil and carries the error instead.
type CaseResult struct {
	Index  int
	Name   string
	Result *Result
	Err    error
}

// BatchOptions bound the batch worker pool.
type BatchOptions struct {
	Workers     int // concurrent evaluations
	TokenBudget int // concurrent image decodes
}

// RunBatch evaluates a set of cases concurrently. One failing case does
// not cancel its siblings; results are ordered by input position.
func RunBatch(ctx context.Context, ev *Evaluator, cases []Case, opts BatchOptions) []CaseResult {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.TokenBudget <= 0 {
		opts.TokenBudget = opts.Workers
	}

	// Token semaphore bounds concurrent image decodes
	tokenSem := make(chan struct{}, opts.TokenBudget)

	logger := logging.New("batch")
	logger.Info("batch evaluation", "cases", len(cases), "workers", opts.Workers, "token_budget", opts.TokenBudget)

	results := make([]CaseResult, len(cases))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, c := range cases {
		c.Index = i
		job := c
		g.Go(func() error {
			results[job.Index] = runCase(gctx, ev, job, tokenSem)
			return nil
		})
	}
	_ = g.Wait() // errors captured in CaseResult.Err

	for _, cr := range results {
		if cr.Err != nil {
			logger.Error("case evaluation failed", "case", cr.Name, "error", cr.Err)
		}
	}
	return results
}

func runCase(ctx context.Context, ev *Evaluator, c Case, tokenSem chan struct{}) CaseResult {
	cr := CaseResult{Index: c.Index, Name: c.Name}

	if err := acquireToken(ctx, tokenSem); err != nil {
		cr.Err = err
		return cr
	}
	in, err := loadInput(c)
	<-tokenSem

	if err != nil {
		cr.Err = err
		return cr
	}

	res := ev.Evaluate(in, c.Iteration)
	cr.Result = &res
	return cr
}

// loadInput reads the case inputs from disk. Missing files are tolerated
// so the evaluator can apply its no-image and no-source penalties; only
// unreadable or corrupt files fail the case.
func loadInput(c Case) (Input, error) {
	var in Input

	gen, err := workspace.ReadImage(c.GeneratedPath)
	if err != nil {
		return in, fmt.Errorf("case %s: generated: %w", c.Name, err)
	}
	in.Generated = gen

	if c.ReferencePath != "" {
		ref, err := workspace.ReadImage(c.ReferencePath)
		if err != nil {
			return in, fmt.Errorf("case %s: reference: %w", c.Name, err)
		}
		in.Reference = ref
	}

	if c.SourcePath != "" {
		src, err := os.ReadFile(c.SourcePath)
		if err != nil && !os.IsNotExist(err) {
			return in, fmt.Errorf("case %s: source: %w", c.Name, err)
		}
		in.Source = string(src)
	}
	return in, nil
}

// acquireToken blocks until a token is available or the context is done.
func acquireToken(ctx context.Context, sem chan struct{}) error {
	select {
	case sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
