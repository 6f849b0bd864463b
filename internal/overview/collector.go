package overview

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultPageSize is used when CollectOptions.PageSize is not positive.
const DefaultPageSize = 100

// CollectOptions tunes a paged collection.
type CollectOptions struct {
	Source   string
	PageSize int
	DateFrom string
	DateTo   string
	Filters  map[string]string
	// MaxPages caps the walk per outlet; zero walks every declared page.
	MaxPages int
	// StopOnEmptyPage ends an outlet walk at the first empty page instead of
	// trusting the declared page count.
	StopOnEmptyPage bool
	// CallTimeout bounds each page request; zero means only ctx applies.
	CallTimeout time.Duration
	// Concurrency limits simultaneous outlet walks; zero means one per outlet.
	Concurrency int
}

// CollectResult is the flattened output of Collect.
type CollectResult[T any] struct {
	Items    []T
	Failures []*SourceError
	Partial  bool
}

// Collect walks every page of source for every outlet in scope. Outlets are
// walked concurrently, pages of one outlet sequentially. A failed outlet
// contributes no items and is reported in Failures; Collect only returns an
// error when every outlet failed. Items are merged in scope order, then page
// order, then source order.
func Collect[T any](ctx context.Context, source PageSource[T], scope []string, opts CollectOptions) (CollectResult[T], error) {
	if len(scope) == 0 {
		return CollectResult[T]{}, ErrEmptyScope
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}

	perOutlet := make([][]T, len(scope))
	errs := make([]error, len(scope))

	var g errgroup.Group
	if opts.Concurrency > 0 {
		g.SetLimit(opts.Concurrency)
	}
	for i, outletID := range scope {
		g.Go(func() error {
			if source == nil {
				errs[i] = errors.New("source not configured")
				return nil
			}
			perOutlet[i], errs[i] = walkOutlet(ctx, source, outletID, opts)
			return nil
		})
	}
	_ = g.Wait()

	var result CollectResult[T]
	joined := make([]error, 0)
	for i, outletID := range scope {
		if errs[i] != nil {
			srcErr := &SourceError{Source: opts.Source, OutletID: outletID, Err: errs[i]}
			result.Failures = append(result.Failures, srcErr)
			joined = append(joined, srcErr)
			continue
		}
		result.Items = append(result.Items, perOutlet[i]...)
	}
	if len(result.Failures) == len(scope) {
		return result, &SourceError{Source: opts.Source, OutletID: "*", Err: errors.Join(joined...)}
	}
	result.Partial = len(result.Failures) > 0
	return result, nil
}

func walkOutlet[T any](ctx context.Context, source PageSource[T], outletID string, opts CollectOptions) ([]T, error) {
	var items []T
	pages := 1
	for page := 1; page <= pages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := fetchPage(ctx, source, PageRequest{
			OutletID: outletID,
			Page:     page,
			Size:     opts.PageSize,
			DateFrom: opts.DateFrom,
			DateTo:   opts.DateTo,
			Filters:  opts.Filters,
		}, opts.CallTimeout)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		if page == 1 {
			pages = res.Pages
			if pages < 1 {
				pages = 1
			}
			if opts.MaxPages > 0 && pages > opts.MaxPages {
				pages = opts.MaxPages
			}
		}
		items = append(items, res.Items...)
		if len(res.Items) == 0 && opts.StopOnEmptyPage {
			break
		}
	}
	return items, nil
}

func fetchPage[T any](ctx context.Context, source PageSource[T], req PageRequest, timeout time.Duration) (Page[T], error) {
	if timeout <= 0 {
		return source.ListPage(ctx, req)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return source.ListPage(callCtx, req)
}
