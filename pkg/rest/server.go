// Package rest implements the HTTP boundary adapter from spec §4.I and
// §6: JSON endpoints for point lookups, children lookups, span ingest,
// predicate queries, and server info/stats, routed with gorilla/mux the
// way the retrieval pack's collector HTTP handlers are (see
// http_handler_test.go in the jaeger tracing collector), plus a
// Prometheus /metrics endpoint via promhttp.
package rest

import (
	"bufio"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/htrace/htraced/pkg/ingest"
	"github.com/htrace/htraced/pkg/log"
	"github.com/htrace/htraced/pkg/metricssink"
	"github.com/htrace/htraced/pkg/query"
	"github.com/htrace/htraced/pkg/span"
	"github.com/htrace/htraced/pkg/spanid"
)

// BuildInfo answers GET /server/info.
type BuildInfo struct {
	ReleaseVersion string
	GitVersion     string
}

// Server wires the core components to HTTP handlers.
type Server struct {
	exec     *query.Executor
	ingestor *ingest.Ingestor
	sink     *metricssink.Sink
	build    BuildInfo
	ingested *counter
	router   *mux.Router
}

// counter is a tiny lock-free accumulator for the ingested-spans total
// reported by /server/stats; the metrics sink tracks per-origin detail,
// this tracks only the grand total. http.Server runs handlers on
// goroutines per request, so the add/get pair must be atomic.
type counter struct{ n atomic.Int64 }

func (c *counter) add(delta int) { c.n.Add(int64(delta)) }
func (c *counter) get() int64    { return c.n.Load() }

// NewServer builds the router. /metrics is served by promhttp.Handler(),
// which exposes the process's default registerer.
func NewServer(exec *query.Executor, ingestor *ingest.Ingestor, sink *metricssink.Sink, build BuildInfo) *Server {
	s := &Server{exec: exec, ingestor: ingestor, sink: sink, build: build, ingested: &counter{}}
	r := mux.NewRouter()
	r.HandleFunc("/server/info", s.handleServerInfo).Methods(http.MethodGet)
	r.HandleFunc("/server/stats", s.handleServerStats).Methods(http.MethodGet)
	r.HandleFunc("/span/{hexid}", s.handleFindSpan).Methods(http.MethodGet)
	r.HandleFunc("/span/{hexid}/children", s.handleFindChildren).Methods(http.MethodGet)
	r.HandleFunc("/writeSpans", s.handleWriteSpans).Methods(http.MethodPost)
	r.HandleFunc("/query", s.handleQuery).Methods(http.MethodPost)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.NotFoundHandler = http.HandlerFunc(notFound)
	s.router = r
	return s
}

// Router exposes the mux.Router for http.Serve.
func (s *Server) Router() *mux.Router { return s.router }

func notFound(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "not found", http.StatusNotFound)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders spec §6's {"error":"..."} body with embedded
// quotation marks normalized to single quotes so the body itself stays
// valid JSON.
func writeError(w http.ResponseWriter, status int, err error) {
	msg := strings.ReplaceAll(err.Error(), `"`, "'")
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleServerInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.build)
}

type originStats struct {
	Written       int64
	ServerDropped int64
}

func (s *Server) handleServerStats(w http.ResponseWriter, r *http.Request) {
	totals, err := s.sink.AccessTotals(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	byOrigin := make(map[string]originStats, len(totals))
	for origin, t := range totals {
		byOrigin[origin] = originStats{Written: t.Written, ServerDropped: t.Dropped}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"IngestedSpans": s.ingested.get(),
		"ByOrigin":      byOrigin,
	})
}

func (s *Server) handleFindSpan(w http.ResponseWriter, r *http.Request) {
	id, err := spanid.Parse(mux.Vars(r)["hexid"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	found, err := s.exec.FindSpan(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if found == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := span.WriteJSON(w, found); err != nil {
		log.Error("writing span JSON: " + err.Error())
	}
}

func (s *Server) handleFindChildren(w http.ResponseWriter, r *http.Request) {
	id, err := spanid.Parse(mux.Vars(r)["hexid"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	limit := 20
	if l := r.URL.Query().Get("lim"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		limit = n
	}
	children, err := s.exec.FindChildren(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]string, len(children))
	for i, c := range children {
		out[i] = c.String()
	}
	writeJSON(w, http.StatusOK, out)
}

// handleWriteSpans reads newline-delimited span JSON from the body. The
// optional htrace-trid header sets the default tracer id for spans that
// omit one.
func (s *Server) handleWriteSpans(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	defaultTracerID := r.Header.Get("htrace-trid")
	origin := r.RemoteAddr

	scanner := bufio.NewScanner(r.Body)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)
	accepted := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var sp span.Span
		if err := json.Unmarshal(line, &sp); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if sp.TracerID == "" {
			sp.TracerID = defaultTracerID
		}
		if err := s.ingestor.Ingest(origin, &sp); err == nil {
			accepted++
		}
	}
	if err := scanner.Err(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.ingested.add(accepted)
	writeJSON(w, http.StatusOK, map[string]int{"Accepted": accepted})
}

// queryWire is the urlencoded JSON payload shape for POST /query.
type queryWire struct {
	Predicates []struct {
		Field string `json:"field"`
		Op    string `json:"op"`
		Value string `json:"value"`
	} `json:"predicates"`
	Limit int     `json:"limit"`
	Prev  *string `json:"prev,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("query")
	if raw == "" {
		writeError(w, http.StatusBadRequest, errEmptyQuery)
		return
	}
	var wire queryWire
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	q := query.Query{Limit: wire.Limit}
	for _, p := range wire.Predicates {
		q.Predicates = append(q.Predicates, query.Predicate{
			Field: query.Field(p.Field),
			Op:    query.Op(p.Op),
			Value: p.Value,
		})
	}
	if wire.Prev != nil {
		id, err := spanid.Parse(*wire.Prev)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		q.Prev = &id
	}

	result, err := s.exec.Run(r.Context(), q)
	if err != nil {
		if isBadQuery(err) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte("["))
	for i, sp := range result.Spans {
		if i > 0 {
			w.Write([]byte(","))
		}
		if err := span.WriteJSON(w, sp); err != nil {
			log.Error("writing span JSON: " + err.Error())
			return
		}
	}
	w.Write([]byte("]"))
}

func isBadQuery(err error) bool {
	var bq query.ErrBadQuery
	return errors.As(err, &bq)
}

var errEmptyQuery = badRequestError("missing query parameter")

type badRequestError string

func (e badRequestError) Error() string { return string(e) }
