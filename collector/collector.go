// Package collector defines how ingestion stages pull raw records out of a
// platform. Platform clients only translate wire formats into pages of
// records, the cursor loop, retries and caching live here.
package collector

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Query describes what a Fetcher should return.
type Query struct {
	// Kind selects the endpoint, e.g. KindChannelMessages.
	Kind string `json:"kind"`
	// Target is the platform id or search term the endpoint is scoped to.
	Target string `json:"target"`
	// Only records at or after Since are wanted, zero means no lower bound.
	Since time.Time `json:"since"`
	// Only records before Until are wanted, zero means no upper bound.
	Until time.Time `json:"until"`
	// Endpoint specific parameters.
	Params map[string]string `json:"params,omitempty"`
}

// Page is one response of a Fetcher. An empty NextCursor ends paging.
type Page struct {
	Records    []Record `json:"records"`
	NextCursor string   `json:"next_cursor"`
}

// Fetcher is implemented by every platform client.
type Fetcher interface {
	Fetch(ctx context.Context, q Query, cursor string) (Page, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, q Query, cursor string) (Page, error)

func (f FetcherFunc) Fetch(ctx context.Context, q Query, cursor string) (Page, error) {
	return f(ctx, q, cursor)
}

// FetchAll drives the cursor loop of q, handing every page to fn in order.
// Cancellation is only observed between pages.
func FetchAll(ctx context.Context, f Fetcher, q Query, fn func(Page) error) error {
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return errors.Wrapf(err, "stop fetching %s %s", q.Kind, q.Target)
		}
		page, err := f.Fetch(ctx, q, cursor)
		if err != nil {
			return errors.Wrapf(err, "fail to fetch %s %s at cursor %q", q.Kind, q.Target, cursor)
		}
		if err := fn(page); err != nil {
			return err
		}
		if page.NextCursor == "" || page.NextCursor == cursor {
			return nil
		}
		cursor = page.NextCursor
	}
}

// Collect returns every record of q.
func Collect(ctx context.Context, f Fetcher, q Query) ([]Record, error) {
	var res []Record
	err := FetchAll(ctx, f, q, func(p Page) error {
		res = append(res, p.Records...)
		return nil
	})
	return res, err
}
