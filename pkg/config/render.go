package config

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/cuemby/sentinel/pkg/log"
	"github.com/cuemby/sentinel/pkg/superr"
	"github.com/cuemby/sentinel/pkg/types"
)

// SystemInfo is the local member's view of itself, part of every render
// context.
type SystemInfo struct {
	MemberID   types.MemberId
	IP         string
	Hostname   string
	SwimPort   int
	GossipPort int
}

// BindContext is the resolved, per-member view of a single bound
// service group, exposed to templates through RenderContext.Binds, e.g.
// {{ range (index .Binds "db").Members }}...{{ end }}.
type BindContext struct {
	Name    string
	Group   string
	Members []types.CensusMember
}

// RenderContext is the fully-specified input snapshot passed to every
// template: the service group string, system info, the merged config
// view, the package view, and the resolved binds.
type RenderContext struct {
	ServiceGroup string
	Sys          SystemInfo
	Cfg          Table
	Pkg          types.Pkg
	Binds        map[string]BindContext
}

// CfgRenderer parses every file in a templates directory (hook and
// config templates alike, following the original supervisor's
// single-template-set-per-service design) and renders them against a
// RenderContext, writing only files whose rendered content actually
// changed so identical ticks never touch file mtimes.
type CfgRenderer struct {
	tmpl  *template.Template
	names []string
}

// templateFuncs mirrors the helper set original Habitat registers on its
// handlebars renderer (see templating/helpers in original_source), reborn
// as text/template funcs: eachAlive filters a member list down to the
// ones a {{ range }} should actually visit, toJson lets a template dump
// an arbitrary value inline, and strToLower normalizes case for things
// like comparing a member id against a config value.
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"eachAlive": func(members []types.CensusMember) []types.CensusMember {
			alive := make([]types.CensusMember, 0, len(members))
			for _, m := range members {
				if m.Alive {
					alive = append(alive, m)
				}
			}
			return alive
		},
		"toJson": func(v interface{}) (string, error) {
			b, err := json.Marshal(v)
			if err != nil {
				return "", err
			}
			return string(b), nil
		},
		"strToLower": strings.ToLower,
	}
}

// NewCfgRenderer registers every regular file under templatesDir as a
// named template, keyed by filename.
func NewCfgRenderer(templatesDir string) (*CfgRenderer, error) {
	root := template.New("root").Funcs(templateFuncs())
	var names []string

	entries, err := os.ReadDir(templatesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return &CfgRenderer{tmpl: root}, nil
		}
		return nil, fmt.Errorf("%w: %v", superr.ErrTemplateFile, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(templatesDir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", superr.ErrTemplateFile, path, err)
		}
		if _, err := root.New(entry.Name()).Parse(string(raw)); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", superr.ErrTemplateFile, path, err)
		}
		names = append(names, entry.Name())
	}

	return &CfgRenderer{tmpl: root, names: names}, nil
}

// Compile renders every registered template and writes it to destDir,
// skipping any file whose rendered content hash matches what's already
// on disk. Returns true iff at least one file was (re)written.
func (r *CfgRenderer) Compile(destDir string, ctx *RenderContext) (bool, error) {
	changed := false
	logger := log.WithServiceGroup(typesServiceGroup(ctx.ServiceGroup))

	for _, name := range r.names {
		var buf bytes.Buffer
		if err := r.tmpl.ExecuteTemplate(&buf, name, ctx); err != nil {
			return changed, fmt.Errorf("%w: %s: %v", superr.ErrTemplateFile, name, err)
		}
		compiled := buf.Bytes()
		compiledHash := hashBytes(compiled)

		dest := filepath.Join(destDir, name)
		existingHash, err := hashFile(dest)
		if err == nil && existingHash == compiledHash {
			continue
		}

		if err := os.WriteFile(dest, compiled, 0640); err != nil {
			return changed, fmt.Errorf("%w: %s: %v", superr.ErrTemplateFile, dest, err)
		}
		logger.Info(fmt.Sprintf("updated %s %s", name, compiledHash[:8]))
		changed = true
	}
	return changed, nil
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func hashFile(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return hashBytes(raw), nil
}

// typesServiceGroup parses a canonical service-group string for
// logging purposes only; a parse failure just yields an empty group
// rather than failing the render.
func typesServiceGroup(s string) types.ServiceGroup {
	sg, err := types.ParseServiceGroup(s)
	if err != nil {
		return types.ServiceGroup{}
	}
	return sg
}
