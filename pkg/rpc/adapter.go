package rpc

import (
	"context"

	"github.com/htrace/htraced/pkg/ingest"
	"github.com/htrace/htraced/pkg/query"
)

// Adapter implements Server by delegating to the core ingestor and
// query executor, the same components the REST adapter in pkg/rest
// drives — the binary and JSON boundaries share one set of semantics.
type Adapter struct {
	Ingestor *ingest.Ingestor
	Executor *query.Executor
}

func (a *Adapter) WriteSpans(ctx context.Context, req *WriteSpansRequest) (*WriteSpansResponse, error) {
	if req.DefaultTracerID != "" {
		for _, s := range req.Spans {
			if s.TracerID == "" {
				s.TracerID = req.DefaultTracerID
			}
		}
	}
	accepted := a.Ingestor.IngestBatch(req.Origin, req.Spans)
	return &WriteSpansResponse{Accepted: int32(accepted)}, nil
}

func (a *Adapter) Query(ctx context.Context, req *QueryRequest) (*QueryResponse, error) {
	result, err := a.Executor.Run(ctx, req.ToQuery())
	if err != nil {
		return nil, err
	}
	resp := &QueryResponse{Spans: result.Spans, ScannedPerShard: make([]int32, len(result.ScannedPerShard))}
	for i, n := range result.ScannedPerShard {
		resp.ScannedPerShard[i] = int32(n)
	}
	return resp, nil
}

func (a *Adapter) FindSpan(ctx context.Context, req *FindSpanRequest) (*FindSpanResponse, error) {
	s, err := a.Executor.FindSpan(req.ID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return &FindSpanResponse{}, nil
	}
	return &FindSpanResponse{Found: true, Span: s}, nil
}

func (a *Adapter) FindChildren(ctx context.Context, req *FindChildrenRequest) (*FindChildrenResponse, error) {
	children, err := a.Executor.FindChildren(ctx, req.ID, int(req.Limit))
	if err != nil {
		return nil, err
	}
	return &FindChildrenResponse{Children: children}, nil
}
