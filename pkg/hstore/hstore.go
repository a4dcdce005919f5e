// Package hstore owns shard-set lifecycle: creation, discovery and
// consistency checks at load, and clearing (spec §4.H). It sits below
// pkg/shard (which owns the per-shard write loop) and exposes the opened
// per-shard key/value stores in ShardIndex order, independent of the
// order the operator listed directories in configuration.
package hstore

import (
	"fmt"
	"os"
	"sort"

	"github.com/htrace/htraced/pkg/log"
	"github.com/htrace/htraced/pkg/store"
)

// Shard bundles one directory's opened store with its identity record.
type Shard struct {
	Info  ShardInfo
	Store *store.ShardStore
	Dir   string
}

// Set is a loaded, consistency-checked collection of shards, ordered by
// ShardIndex.
type Set struct {
	DaemonId    string
	TotalShards int
	Shards      []*Shard
}

// Close closes every shard's store.
func (s *Set) Close() error {
	var first error
	for _, sh := range s.Shards {
		if err := sh.Store.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Create lays out a fresh shard set: each directory is created if
// missing, and any SHARD_INFO already in it is overwritten. Every shard
// is stamped with the same freshly drawn DaemonId.
func Create(dirs []string) (*Set, error) {
	if len(dirs) == 0 {
		return nil, fmt.Errorf("no shard directories found")
	}
	daemonId := newDaemonId()
	total := len(dirs)
	set := &Set{DaemonId: daemonId, TotalShards: total}
	for i, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%s: %w", dir, err)
		}
		info := ShardInfo{
			LayoutVersion: CurrentLayoutVersion,
			DaemonId:      daemonId,
			ShardIndex:    i,
			TotalShards:   total,
		}
		if err := writeShardInfo(dir, info); err != nil {
			return nil, err
		}
		st, err := store.Open(dir)
		if err != nil {
			return nil, err
		}
		set.Shards = append(set.Shards, &Shard{Info: info, Store: st, Dir: dir})
		log.WithShard(i).Info().Str("dir", dir).Str("daemon_id", daemonId).Msg("created shard")
	}
	return set, nil
}

// Load opens every directory's store, checks that DaemonId, TotalShards
// and LayoutVersion agree across all of them, and returns the shards
// sorted by ShardIndex regardless of the order dirs was given in.
func Load(dirs []string) (*Set, error) {
	if len(dirs) == 0 {
		return nil, fmt.Errorf("no shard directories found")
	}
	set := &Set{}
	for _, dir := range dirs {
		info, err := readShardInfo(dir)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", dir, err)
		}
		if info.LayoutVersion != CurrentLayoutVersion {
			return nil, fmt.Errorf(
				"the layout version of all shards is %d, but we only support %d",
				info.LayoutVersion, CurrentLayoutVersion)
		}
		if set.DaemonId == "" {
			set.DaemonId = info.DaemonId
			set.TotalShards = info.TotalShards
		} else if info.DaemonId != set.DaemonId {
			return nil, fmt.Errorf("DaemonId mismatch: %s has %s, expected %s",
				dir, info.DaemonId, set.DaemonId)
		} else if info.TotalShards != set.TotalShards {
			return nil, fmt.Errorf("TotalShards mismatch: %s has %d, expected %d",
				dir, info.TotalShards, set.TotalShards)
		}
		st, err := store.Open(dir)
		if err != nil {
			return nil, err
		}
		set.Shards = append(set.Shards, &Shard{Info: info, Store: st, Dir: dir})
	}
	sort.Slice(set.Shards, func(i, j int) bool {
		return set.Shards[i].Info.ShardIndex < set.Shards[j].Info.ShardIndex
	})
	return set, nil
}

// Clear wipes every directory's contents (shard store file and
// SHARD_INFO) so a subsequent Create starts fresh. It does not remove
// the directories themselves.
func Clear(dirs []string) error {
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("%s: %w", dir, err)
		}
		for _, e := range entries {
			if err := os.RemoveAll(dir + string(os.PathSeparator) + e.Name()); err != nil {
				return fmt.Errorf("%s: %w", dir, err)
			}
		}
	}
	return nil
}

// Open creates the shard set if every directory is empty, or loads it
// otherwise, mirroring the "created on first startup when data
// directories are empty" rule from spec §3. If clear is true, every
// directory is wiped first.
func Open(dirs []string, clear bool) (*Set, error) {
	if clear {
		if err := Clear(dirs); err != nil {
			return nil, err
		}
	}
	empty, err := allEmpty(dirs)
	if err != nil {
		return nil, err
	}
	if empty {
		return Create(dirs)
	}
	return Load(dirs)
}

func allEmpty(dirs []string) (bool, error) {
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return false, fmt.Errorf("%s: %w", dir, err)
		}
		if len(entries) > 0 {
			return false, nil
		}
	}
	return true, nil
}
