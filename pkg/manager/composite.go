package manager

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cuemby/sentinel/pkg/superr"
	"github.com/cuemby/sentinel/pkg/types"
	toml "github.com/pelletier/go-toml/v2"
)

// compositesDirName is the persisted-state subdirectory named in §6's
// layout: "composites/ — composite service specs".
const compositesDirName = "composites"

// compositeMembership is the on-disk shape of one composite's
// constituent service groups.
type compositeMembership struct {
	Services []string `toml:"services"`
}

func compositeFilePath(stateDir, name string) string {
	return filepath.Join(stateDir, compositesDirName, name+".toml")
}

// recordComposite materializes sg as a constituent of the named
// composite spec, per the original supervisor's composite handling:
// a composite expands into a set of constituent ServiceSpecs, one
// record per member, persisted so the set survives a restart.
func recordComposite(stateDir, name string, sg types.ServiceGroup) error {
	dir := filepath.Join(stateDir, compositesDirName)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("%w: %v", superr.ErrBadCompositesPath, err)
	}

	path := compositeFilePath(stateDir, name)
	var mem compositeMembership
	if raw, err := os.ReadFile(path); err == nil {
		if err := toml.Unmarshal(raw, &mem); err != nil {
			return fmt.Errorf("%w: %v", superr.ErrBadCompositesPath, err)
		}
	}

	key := sg.String()
	for _, s := range mem.Services {
		if s == key {
			return nil
		}
	}
	mem.Services = append(mem.Services, key)

	out, err := toml.Marshal(mem)
	if err != nil {
		return fmt.Errorf("%w: %v", superr.ErrBadCompositesPath, err)
	}
	if err := os.WriteFile(path, out, 0640); err != nil {
		return fmt.Errorf("%w: %v", superr.ErrBadCompositesPath, err)
	}
	return nil
}

// loadComposite returns the canonical service-group strings previously
// recorded for a composite, used by an operator-facing "stop this whole
// composite" operation to find every constituent.
func loadComposite(stateDir, name string) ([]string, error) {
	raw, err := os.ReadFile(compositeFilePath(stateDir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", superr.ErrBadCompositesPath, err)
	}
	var mem compositeMembership
	if err := toml.Unmarshal(raw, &mem); err != nil {
		return nil, fmt.Errorf("%w: %v", superr.ErrBadCompositesPath, err)
	}
	return mem.Services, nil
}
