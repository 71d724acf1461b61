package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/cuemby/fluxion/internal/rpcerr"
	"gopkg.in/yaml.v3"
)

// Config holds every key spec section 6 names for fluxion-resourced.
type Config struct {
	LoadFile        string   `yaml:"load-file"`
	LoadFormat      string   `yaml:"load-format"`
	LoadAllowlist   []string `yaml:"load-allowlist"`
	MatchPolicy     string   `yaml:"match-policy"`
	MatchFormat     string   `yaml:"match-format"`
	Subsystems      []string `yaml:"subsystems"`
	ReserveVtxVec   int64    `yaml:"reserve-vtx-vec"`
	PruneFilters    []string `yaml:"prune-filters"`
	UpdateInterval  int64    `yaml:"update-interval"`
	TraverserPolicy string   `yaml:"traverser-policy"`

	LogLevel string `yaml:"log-level"`
	LogJSON  bool   `yaml:"log-json"`
}

// Default returns the compiled-in defaults, the lowest-precedence
// source in spec section 6's "later sources override earlier" chain.
func Default() *Config {
	return &Config{
		LoadFormat:      "hwloc",
		MatchPolicy:     "first",
		MatchFormat:     "rv1_nosched",
		Subsystems:      []string{"containment"},
		ReserveVtxVec:   0,
		UpdateInterval:  0,
		TraverserPolicy: "simple",
		LogLevel:        "info",
	}
}

// LoadFile reads a YAML config file and applies its keys over cfg.
// A missing path is not an error: the file source is optional.
func LoadFile(cfg *Config, path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return rpcerr.New(rpcerr.KindRequestMalformed, rpcerr.EINVAL, "reading config file: "+err.Error())
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return rpcerr.New(rpcerr.KindRequestMalformed, rpcerr.EINVAL, "parsing config file: "+err.Error())
	}
	return nil
}

// ApplyTokens parses "k=v" command-line tokens, the highest-precedence
// source, and applies them over cfg in order.
func ApplyTokens(cfg *Config, tokens []string) error {
	for _, tok := range tokens {
		if err := applyToken(cfg, tok); err != nil {
			return err
		}
	}
	return nil
}

func applyToken(cfg *Config, tok string) error {
	parts := strings.SplitN(tok, "=", 2)
	if len(parts) != 2 {
		return rpcerr.New(rpcerr.KindRequestMalformed, rpcerr.EINVAL, "malformed config token: "+tok)
	}
	key, val := parts[0], parts[1]
	switch key {
	case "load-file":
		cfg.LoadFile = val
	case "load-format":
		cfg.LoadFormat = val
	case "load-allowlist":
		cfg.LoadAllowlist = splitCSV(val)
	case "match-policy":
		cfg.MatchPolicy = val
	case "match-format":
		cfg.MatchFormat = val
	case "subsystems":
		cfg.Subsystems = splitCSV(val)
	case "reserve-vtx-vec":
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return rpcerr.New(rpcerr.KindRequestMalformed, rpcerr.EINVAL, "reserve-vtx-vec must be an integer: "+val)
		}
		cfg.ReserveVtxVec = n
	case "prune-filters":
		cfg.PruneFilters = splitCSV(val)
	case "update-interval":
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return rpcerr.New(rpcerr.KindRequestMalformed, rpcerr.EINVAL, "update-interval must be an integer: "+val)
		}
		cfg.UpdateInterval = n
	case "traverser-policy":
		cfg.TraverserPolicy = val
	case "log-level":
		cfg.LogLevel = val
	case "log-json":
		cfg.LogJSON = val == "true" || val == "1"
	default:
		return rpcerr.New(rpcerr.KindRequestMalformed, rpcerr.EINVAL, "unknown config key: "+key)
	}
	return nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load builds a Config by merging defaults, an optional YAML file,
// then k=v tokens, in spec section 6's precedence order.
func Load(filePath string, tokens []string) (*Config, error) {
	cfg := Default()
	if err := LoadFile(cfg, filePath); err != nil {
		return nil, err
	}
	if err := ApplyTokens(cfg, tokens); err != nil {
		return nil, err
	}
	return cfg, nil
}
