package hstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// CurrentLayoutVersion is the only shard-set layout this build
// understands. Loading a shard set stamped with any other version fails.
const CurrentLayoutVersion = 1

const shardInfoFileName = "SHARD_INFO"

// ShardInfo is the small per-directory record distinguishing a shard set
// from another and a shard's position within it (spec §3, §4.H).
type ShardInfo struct {
	LayoutVersion int    `json:"LayoutVersion"`
	DaemonId      string `json:"DaemonId"`
	ShardIndex    int    `json:"ShardIndex"`
	TotalShards   int    `json:"TotalShards"`
}

func readShardInfo(dir string) (ShardInfo, error) {
	var info ShardInfo
	data, err := os.ReadFile(filepath.Join(dir, shardInfoFileName))
	if err != nil {
		return info, err
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return info, fmt.Errorf("%s: malformed SHARD_INFO: %w", dir, err)
	}
	return info, nil
}

func writeShardInfo(dir string, info ShardInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, shardInfoFileName), data, 0o600)
}

// newDaemonId draws a fresh random daemon id, stamped into every shard
// created together so a mixed shard set from two different creations is
// detected at load time.
func newDaemonId() string {
	return uuid.NewString()
}
