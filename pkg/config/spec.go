package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cuemby/sentinel/pkg/types"
	yaml "gopkg.in/yaml.v3"
)

// specFile is the on-disk shape of a ServiceSpec, following the
// teacher's pkg/deploy use of yaml.v3 for structured spec files. This
// implements the "files-as-intent" decision: an operator or a prior
// `load` call drops one YAML file per loaded service into
// {state}/specs/<service>.spec, and the run-loop treats that directory
// as the source of truth for desired state across restarts.
type specFile struct {
	Origin               string            `yaml:"origin"`
	Name                 string            `yaml:"name"`
	Version              string            `yaml:"version,omitempty"`
	Release              string            `yaml:"release,omitempty"`
	Group                string            `yaml:"group,omitempty"`
	BldrURL              string            `yaml:"bldr_url,omitempty"`
	Channel              string            `yaml:"channel,omitempty"`
	Topology             string            `yaml:"topology,omitempty"`
	UpdateStrategy       string            `yaml:"update_strategy,omitempty"`
	Binds                []string          `yaml:"binds,omitempty"`
	BindingMode          string            `yaml:"binding_mode,omitempty"`
	ConfigFrom           string            `yaml:"config_from,omitempty"`
	DesiredState         string            `yaml:"desired_state,omitempty"`
	SvcEncryptedPassword string `yaml:"svc_encrypted_password,omitempty"`
	Composite            string `yaml:"composite,omitempty"`
}

// SpecPath renders the path a ServiceSpec for ident is stored under
// within a supervisor's state directory.
func SpecPath(stateDir string, ident types.PackageIdent) string {
	return filepath.Join(stateDir, "specs", ident.Name+".spec")
}

// LoadServiceSpec reads and parses one on-disk spec file.
func LoadServiceSpec(path string) (*types.ServiceSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sf specFile
	if err := yaml.Unmarshal(raw, &sf); err != nil {
		return nil, fmt.Errorf("parse spec %s: %w", path, err)
	}
	return sf.toServiceSpec(), nil
}

// LoadAllServiceSpecs reads every *.spec file under {state}/specs/.
func LoadAllServiceSpecs(stateDir string) ([]*types.ServiceSpec, error) {
	dir := filepath.Join(stateDir, "specs")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var specs []*types.ServiceSpec
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".spec" {
			continue
		}
		spec, err := LoadServiceSpec(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// SaveServiceSpec writes a ServiceSpec to {state}/specs/<name>.spec,
// creating the specs directory if needed.
func SaveServiceSpec(stateDir string, spec *types.ServiceSpec) error {
	dir := filepath.Join(stateDir, "specs")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}
	raw, err := yaml.Marshal(fromServiceSpec(spec))
	if err != nil {
		return err
	}
	return os.WriteFile(SpecPath(stateDir, spec.Ident), raw, 0640)
}

// RemoveServiceSpec deletes a service's on-disk spec file, used on
// `unload`.
func RemoveServiceSpec(stateDir string, ident types.PackageIdent) error {
	err := os.Remove(SpecPath(stateDir, ident))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (sf specFile) toServiceSpec() *types.ServiceSpec {
	spec := &types.ServiceSpec{
		Ident: types.PackageIdent{
			Origin:  sf.Origin,
			Name:    sf.Name,
			Version: sf.Version,
			Release: sf.Release,
		},
		Group:          sf.Group,
		BldrURL:        sf.BldrURL,
		Channel:        sf.Channel,
		Topology:       types.Topology(orDefault(sf.Topology, string(types.TopologyStandalone))),
		UpdateStrategy: types.UpdateStrategy(orDefault(sf.UpdateStrategy, string(types.UpdateStrategyNone))),
		BindingMode:    types.BindingMode(orDefault(sf.BindingMode, string(types.BindingRelaxed))),
		DesiredState:   types.DesiredState(orDefault(sf.DesiredState, string(types.DesiredUp))),
	}
	for _, b := range sf.Binds {
		name, groupStr, ok := splitBind(b)
		if !ok {
			continue
		}
		sg, err := types.ParseServiceGroup(groupStr)
		if err != nil {
			continue
		}
		spec.Binds = append(spec.Binds, types.Bind{Name: name, ServiceGroup: sg})
	}
	if sf.ConfigFrom != "" {
		v := sf.ConfigFrom
		spec.ConfigFrom = &v
	}
	if sf.SvcEncryptedPassword != "" {
		v := sf.SvcEncryptedPassword
		spec.SvcEncryptedPassword = &v
	}
	if sf.Composite != "" {
		v := sf.Composite
		spec.Composite = &v
	}
	return spec
}

func fromServiceSpec(spec *types.ServiceSpec) specFile {
	sf := specFile{
		Origin:         spec.Ident.Origin,
		Name:           spec.Ident.Name,
		Version:        spec.Ident.Version,
		Release:        spec.Ident.Release,
		Group:          spec.Group,
		BldrURL:        spec.BldrURL,
		Channel:        spec.Channel,
		Topology:       string(spec.Topology),
		UpdateStrategy: string(spec.UpdateStrategy),
		BindingMode:    string(spec.BindingMode),
		DesiredState:   string(spec.DesiredState),
	}
	for _, b := range spec.Binds {
		sf.Binds = append(sf.Binds, b.Name+":"+b.ServiceGroup.String())
	}
	if spec.ConfigFrom != nil {
		sf.ConfigFrom = *spec.ConfigFrom
	}
	if spec.SvcEncryptedPassword != nil {
		sf.SvcEncryptedPassword = *spec.SvcEncryptedPassword
	}
	if spec.Composite != nil {
		sf.Composite = *spec.Composite
	}
	return sf
}

func splitBind(s string) (name, group string, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
