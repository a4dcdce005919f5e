package query

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/htrace/htraced/pkg/index"
	"github.com/htrace/htraced/pkg/span"
	"github.com/htrace/htraced/pkg/spanid"
)

// FindSpan resolves id to its full span via a direct shard routing hash,
// or (nil, nil) if it is not present.
func (ex *Executor) FindSpan(id spanid.SpanId) (*span.Span, error) {
	return ex.findSpan(id)
}

// FindChildren returns up to limit span ids naming parent as a parent.
// A child span lands on whichever shard its own id hashes to, which may
// differ from parent's shard, so every shard's C family must be
// consulted.
func (ex *Executor) FindChildren(ctx context.Context, parent spanid.SpanId, limit int) ([]spanid.SpanId, error) {
	if limit <= 0 {
		limit = 1
	}
	prefix := index.ChildScanPrefix(parent)
	hi := index.ExclusiveUpperBound(append(index.ChildScanPrefix(parent), spanid.Max[:]...))

	perShard := make([][]spanid.SpanId, len(ex.shards))
	g, gctx := errgroup.WithContext(ctx)
	for i, sh := range ex.shards {
		i, sh := i, sh
		g.Go(func() error {
			it, err := sh.Store.RangeScan(prefix, hi, false)
			if err != nil {
				return err
			}
			defer it.Close()
			var children []spanid.SpanId
			for it.Next() {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				child, err := index.ChildFromKey(it.Key())
				if err != nil {
					return err
				}
				children = append(children, child)
				if len(children) >= limit {
					break
				}
			}
			perShard[i] = children
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []spanid.SpanId
	for _, c := range perShard {
		all = append(all, c...)
	}
	sort.Sort(spanid.ByCompare(all))
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}
