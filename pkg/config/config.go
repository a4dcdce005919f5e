// Package config loads htraced's flat key=value configuration, the
// shape the boundary adapters and store lifecycle read from (spec §6):
// an optional on-disk defaults file plus `-Dkey=value` / `-Dkey`
// command-line overrides layered on top, mirroring the way the daemon's
// cobra command line composes flags over a config file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/htrace/htraced/pkg/log"
)

// Recognized keys. Unrecognized keys are kept and accessible but never
// read by the daemon; config is deliberately permissive so older and
// newer deployments can share a file.
const (
	KeyWebAddress            = "web.address"
	KeyHrpcAddress           = "hrpc.address"
	KeyDataStoreDirectories  = "data.store.directories"
	KeyDataStoreClear        = "data.store.clear"
	KeyMetricsHeartbeatMs    = "metrics.heartbeat.period.ms"
	KeyMetricsMaxAddrEntries = "metrics.max.addr.entries"
	KeyDatastoreHeartbeatMs  = "datastore.heartbeat.period.ms"
	KeyLogLevel              = "log.level"
	KeyLogJSON               = "log.json"
	KeyStartupNotifyAddress  = "startup.notification.address"
)

// Config is a flat string-keyed property bag, overridable piece by
// piece from the command line.
type Config struct {
	values map[string]string
}

// New returns an empty Config.
func New() *Config {
	return &Config{values: make(map[string]string)}
}

// Load reads defaults from an optional YAML file (a flat string-keyed
// map; absent file is not an error) and layers the CLI's -D overrides
// on top, last one wins.
func Load(yamlPath string, overrides []string) (*Config, error) {
	c := New()
	if yamlPath != "" {
		if err := c.loadYAML(yamlPath); err != nil {
			return nil, err
		}
	}
	for _, o := range overrides {
		if err := c.applyOverride(o); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config %s: %w", path, err)
	}
	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	for k, v := range raw {
		c.values[k] = v
	}
	return nil
}

// applyOverride parses "-Dkey=value" or "-Dkey" (-> "true"), with or
// without the leading "-D" (cobra strips recognized flags before args
// reach us, so we accept both forms).
func (c *Config) applyOverride(arg string) error {
	arg = strings.TrimPrefix(arg, "-D")
	if arg == "" {
		return fmt.Errorf("config: empty override")
	}
	if eq := strings.IndexByte(arg, '='); eq >= 0 {
		c.values[arg[:eq]] = arg[eq+1:]
		return nil
	}
	c.values[arg] = "true"
	return nil
}

// Set assigns key directly, for composing a Config in-process without
// a file or command-line overrides.
func (c *Config) Set(key, value string) {
	c.values[key] = value
}

// Get returns key's raw string value and whether it was set.
func (c *Config) Get(key string) (string, bool) {
	v, ok := c.values[key]
	return v, ok
}

// String returns key's value, or def if unset.
func (c *Config) String(key, def string) string {
	if v, ok := c.values[key]; ok {
		return v
	}
	return def
}

// Bool parses key's value as a bool, or returns def if unset or
// unparsable.
func (c *Config) Bool(key string, def bool) bool {
	v, ok := c.values[key]
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// Int parses key's value as an int, or returns def if unset or
// unparsable.
func (c *Config) Int(key string, def int) int {
	v, ok := c.values[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// LogConfig derives a log.Config from this config's log.level/log.json
// keys, so callers don't duplicate the level-string mapping themselves.
// JSON output defaults to true, matching production deployment; set
// log.json=false for the console writer during local debugging.
func (c *Config) LogConfig() log.Config {
	return log.Config{
		Level:      log.Level(c.String(KeyLogLevel, string(log.InfoLevel))),
		JSONOutput: c.Bool(KeyLogJSON, true),
	}
}

// StringList splits key's value on commas, trimming whitespace, or
// returns nil if unset.
func (c *Config) StringList(key string) []string {
	v, ok := c.values[key]
	if !ok || v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
