package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cuemby/sentinel/pkg/types"
)

// FilesystemPackageSource resolves packages from a local install root
// laid out the way Habitat's PackageInstall::load expects: one
// directory per origin/name/version/release under Root, following
// original_source's components/sup/src/manager/service/mod.rs
// ("PackageInstall::load(&spec.ident, Some(fs_root_path))"). The real
// package archive/builder client that fetches new releases over the
// network is the out-of-scope collaborator named in §1; this only
// reads what is already unpacked on disk.
type FilesystemPackageSource struct {
	Root string
}

func NewFilesystemPackageSource(root string) *FilesystemPackageSource {
	return &FilesystemPackageSource{Root: root}
}

func (s *FilesystemPackageSource) pkgsDir(origin, name string) string {
	return filepath.Join(s.Root, "pkgs", origin, name)
}

// Resolve loads the on-disk view of ident. If ident is not fully
// qualified, the latest installed version/release under origin/name is
// used.
func (s *FilesystemPackageSource) Resolve(ident types.PackageIdent) (types.Pkg, error) {
	resolved := ident
	if !resolved.FullyQualified() {
		latest, ok, err := s.latestInstalled(ident.Origin, ident.Name)
		if err != nil {
			return types.Pkg{}, err
		}
		if !ok {
			return types.Pkg{}, fmt.Errorf("no installed release for %s/%s", ident.Origin, ident.Name)
		}
		resolved = latest
	}

	installPath := filepath.Join(s.pkgsDir(resolved.Origin, resolved.Name), resolved.Version, resolved.Release)
	if info, err := os.Stat(installPath); err != nil || !info.IsDir() {
		return types.Pkg{}, fmt.Errorf("package %s not installed at %s", resolved.String(), installPath)
	}

	svcRoot := filepath.Join(s.Root, "svc", resolved.Name)
	pkg := types.Pkg{
		Ident:         resolved,
		InstallPath:   installPath,
		SvcPath:       svcRoot,
		SvcConfigPath: filepath.Join(svcRoot, "config"),
		SvcFilesPath:  filepath.Join(svcRoot, "files"),
		SvcHooksPath:  filepath.Join(svcRoot, "hooks"),
		SvcVarPath:    filepath.Join(svcRoot, "var"),
		SvcDataPath:   filepath.Join(svcRoot, "data"),
		SvcStaticPath: filepath.Join(svcRoot, "static"),
		Env:           readKeyValueFile(filepath.Join(installPath, "ENVIRONMENT")),
		Exports:       readKeyValueFile(filepath.Join(installPath, "EXPORTS")),
		SvcUser:       readSingleLine(filepath.Join(installPath, "SVC_USER")),
		SvcGroup:      readSingleLine(filepath.Join(installPath, "SVC_GROUP")),
	}
	if runCmd := readSingleLine(filepath.Join(installPath, "RUNCMD")); runCmd != "" {
		pkg.RunCmd = strings.Fields(runCmd)
	}
	return pkg, nil
}

// CheckForUpdate reports the latest release installed for ident's
// origin/name, if any is newer than ident itself. channel is accepted
// for interface compatibility but unused: without the builder
// collaborator, every installed release is already implicitly "on
// channel" by virtue of being unpacked locally.
func (s *FilesystemPackageSource) CheckForUpdate(ident types.PackageIdent, channel string) (types.PackageIdent, bool, error) {
	latest, ok, err := s.latestInstalled(ident.Origin, ident.Name)
	if err != nil || !ok {
		return types.PackageIdent{}, false, err
	}
	if !latest.Newer(ident) {
		return types.PackageIdent{}, false, nil
	}
	return latest, true, nil
}

func (s *FilesystemPackageSource) latestInstalled(origin, name string) (types.PackageIdent, bool, error) {
	versions, err := os.ReadDir(s.pkgsDir(origin, name))
	if err != nil {
		if os.IsNotExist(err) {
			return types.PackageIdent{}, false, nil
		}
		return types.PackageIdent{}, false, err
	}

	var candidates []types.PackageIdent
	for _, v := range versions {
		if !v.IsDir() {
			continue
		}
		releases, err := os.ReadDir(filepath.Join(s.pkgsDir(origin, name), v.Name()))
		if err != nil {
			continue
		}
		for _, r := range releases {
			if !r.IsDir() {
				continue
			}
			candidates = append(candidates, types.PackageIdent{Origin: origin, Name: name, Version: v.Name(), Release: r.Name()})
		}
	}
	if len(candidates) == 0 {
		return types.PackageIdent{}, false, nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[j].Newer(candidates[i]) })
	return candidates[len(candidates)-1], true, nil
}

func readKeyValueFile(path string) map[string]string {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	out := make(map[string]string)
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func readSingleLine(path string) string {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}
