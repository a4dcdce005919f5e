/*
Package log provides structured logging for htraced using zerolog.

The log package wraps zerolog to give every component — shard writers,
ingestors, the query executor, the metrics sink, the REST/RPC adapters —
a logger tagged with its own identity, so a single process's logs can be
filtered by shard index or by origin address without grepping message
text.

# Architecture

	┌─────────────────── LOGGING SYSTEM ───────────────────┐
	│                                                        │
	│  Global Logger (zerolog.Logger)                       │
	│    initialized once via log.Init() at daemon startup  │
	│                                                        │
	│  Context loggers                                      │
	│    WithComponent("query")                             │
	│    WithShard(3)                                       │
	│    WithOrigin("10.0.0.4:53421")                        │
	│    WithSpanID("0123...")                               │
	│                                                        │
	│  Output: JSON (production) or console (development)   │
	└────────────────────────────────────────────────────────┘

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	shardLog := log.WithShard(idx)
	shardLog.Info().Int("batch_size", n).Msg("committed batch")

	originLog := log.WithOrigin(remoteAddr)
	originLog.Warn().Msg("queue full, dropping span")

Do not log span Info payloads or description text at Info level in
production deployments that carry sensitive trace data — span content is
operator data, not server diagnostics.
*/
package log
