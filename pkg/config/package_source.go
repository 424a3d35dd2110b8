package config

import "github.com/cuemby/sentinel/pkg/types"

// PackageSource resolves packages from a builder-style channel and
// checks whether a newer release has been published. The real
// implementation — talking to a package archive/builder HTTP API — is
// an external collaborator (spec non-goal); pkg/manager's self-update
// path depends only on this interface, matching the teacher's pattern
// of fixing integration boundaries with a narrow interface
// (pkg/storage.Store) rather than importing a concrete client.
type PackageSource interface {
	// Resolve installs (or locates an already-installed) ident and
	// returns its on-disk Pkg view.
	Resolve(ident types.PackageIdent) (types.Pkg, error)
	// CheckForUpdate reports the latest release on channel for ident's
	// origin/name, if it's newer than ident's own release.
	CheckForUpdate(ident types.PackageIdent, channel string) (types.PackageIdent, bool, error)
}
