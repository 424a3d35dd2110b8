package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cuemby/sentinel/pkg/census"
	"github.com/cuemby/sentinel/pkg/log"
	"github.com/cuemby/sentinel/pkg/superr"
	"github.com/cuemby/sentinel/pkg/types"
	toml "github.com/pelletier/go-toml/v2"
)

const envVarPrefix = "HAB"

// Cfg is the four-tier configuration entity: default (package-shipped),
// environment (supervisor process env), user (operator override) and
// gossip (census-delivered). GossipIncarnation tracks the last accepted
// gossip update so stale or duplicate ServiceConfig rumors are ignored.
type Cfg struct {
	Default           Table
	Environment       Table
	User              Table
	Gossip            Table
	GossipIncarnation uint64
}

// NewCfg loads the default and user tiers from disk and the environment
// tier from the process environment, following the package root
// override rule: when configFrom is non-empty, default.toml is read
// from there instead of pkg.InstallPath (used by `hab sup run
// --config-from` style local development).
func NewCfg(pkg types.Pkg, configFrom string) (*Cfg, error) {
	cfg := &Cfg{}

	defaultRoot := pkg.InstallPath
	if configFrom != "" {
		defaultRoot = configFrom
	}
	if t, err := loadTomlFile(filepath.Join(defaultRoot, "default.toml")); err != nil {
		return nil, err
	} else {
		cfg.Default = t
	}

	if t, err := loadTomlFile(filepath.Join(pkg.SvcPath, "user.toml")); err != nil {
		return nil, err
	} else {
		cfg.User = t
	}

	t, err := loadEnvironment(pkg.Ident.Name)
	if err != nil {
		return nil, err
	}
	cfg.Environment = t

	return cfg, nil
}

// loadTomlFile reads and parses a TOML file, returning a nil Table
// (not an error) when the file simply doesn't exist — a package or
// service is not required to ship every tier.
func loadTomlFile(path string) (Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		log.WithComponent("config").Warn().Err(err).Str("path", path).Msg("failed to read config tier")
		return nil, nil
	}
	return decodeToml(raw)
}

func decodeToml(raw []byte) (Table, error) {
	var decoded map[string]any
	if err := toml.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	return normalizeTable(decoded).(Table), nil
}

// loadEnvironment reads HAB_<PKG_NAME> from the process environment,
// trying TOML first and falling back to JSON, matching the original
// supervisor's env-config parsing order.
func loadEnvironment(pkgName string) (Table, error) {
	varName := envVarPrefix + "_" + strings.ReplaceAll(strings.ToUpper(pkgName), "-", "_")
	raw, ok := os.LookupEnv(varName)
	if !ok {
		return nil, nil
	}
	if t, err := decodeToml([]byte(raw)); err == nil {
		return t, nil
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
		return normalizeTable(decoded).(Table), nil
	}
	return nil, fmt.Errorf("%w: %s", superr.ErrBadEnvConfig, varName)
}

// Update overwrites the gossip tier from the census group's
// ServiceConfig rumor iff its incarnation is strictly newer than the
// last one applied. Returns true iff the gossip tier changed.
func (c *Cfg) Update(group *census.CensusGroup) bool {
	if group == nil || group.ServiceConfig == nil {
		return false
	}
	if group.ServiceConfig.Incarnation <= c.GossipIncarnation {
		return false
	}
	t, err := decodeToml(group.ServiceConfig.Toml)
	if err != nil {
		log.WithComponent("config").Warn().Err(err).Msg("gossip config failed to parse, ignoring")
		return false
	}
	c.GossipIncarnation = group.ServiceConfig.Incarnation
	c.Gossip = t
	return true
}

// Render flattens the four tiers into one merged Table, in ascending
// priority order: default, environment, user, gossip. Each tier is
// cloned before merging so the caller's stored tiers are never mutated.
func (c *Cfg) Render() (Table, error) {
	out := make(Table)
	for _, tier := range []Table{c.Default, c.Environment, c.User, c.Gossip} {
		if tier == nil {
			continue
		}
		if err := merge(out, clone(tier), 0); err != nil {
			return nil, fmt.Errorf("%w", err)
		}
	}
	return out, nil
}

// ToExported returns the subset of a rendered config whitelisted by
// pkg.Exports, which maps an externally visible name to a dotted path
// into the rendered table (e.g. "port" -> "network.port").
func (c *Cfg) ToExported(pkg types.Pkg) (Table, error) {
	rendered, err := c.Render()
	if err != nil {
		return nil, err
	}
	out := make(Table, len(pkg.Exports))
	for name, path := range pkg.Exports {
		v, found := get(rendered, strings.Split(path, "."))
		if found {
			out[name] = v
		}
	}
	return out, nil
}
