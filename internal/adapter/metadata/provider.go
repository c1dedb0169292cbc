package metadata

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/vinicius-lino-figueiredo/gedal/domain"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/tree"
)

// StaticProvider implements [domain.MetadataProvider] over metadata held in
// memory.
type StaticProvider struct {
	mu       sync.RWMutex
	entities map[string]map[string]*domain.EntityMetadata
	defaults map[string]string
}

// NewStaticProvider returns a provider holding the given metadata.
func NewStaticProvider(mds ...*domain.EntityMetadata) *StaticProvider {
	p := &StaticProvider{
		entities: make(map[string]map[string]*domain.EntityMetadata),
		defaults: make(map[string]string),
	}
	for _, md := range mds {
		p.Add(md)
	}
	return p
}

// Add registers md, replacing any metadata with the same name and version.
// The default version of the entity is taken from md.
func (p *StaticProvider) Add(md *domain.EntityMetadata) {
	p.mu.Lock()
	defer p.mu.Unlock()
	name := md.Info.Name
	if p.entities[name] == nil {
		p.entities[name] = make(map[string]*domain.EntityMetadata)
	}
	p.entities[name][md.Schema.Version] = md
	if md.Info.DefaultVersion != "" {
		p.defaults[name] = md.Info.DefaultVersion
	} else if _, ok := p.defaults[name]; !ok {
		p.defaults[name] = md.Schema.Version
	}
}

// Resolve implements [domain.MetadataProvider].
func (p *StaticProvider) Resolve(ctx context.Context, name, version string) (*domain.EntityMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	versions, ok := p.entities[name]
	if !ok {
		return nil, domain.ErrEntityNotFound{Name: name, Version: version}
	}
	if version == "" {
		version = p.defaults[name]
	}
	md, ok := versions[version]
	if !ok {
		return nil, domain.ErrEntityNotFound{Name: name, Version: version}
	}
	return md, nil
}

// LoadFS parses every .yaml, .yml and .json file of fsys with parser and adds
// the result to the provider.
func (p *StaticProvider) LoadFS(fsys fs.FS, parser *Parser) error {
	return fs.WalkDir(fsys, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		var parse func([]byte) (domain.TreeNode, error)
		switch filepath.Ext(name) {
		case ".yaml", ".yml":
			parse = tree.ParseYAML
		case ".json":
			parse = tree.ParseJSON
		default:
			return nil
		}
		b, err := fs.ReadFile(fsys, name)
		if err != nil {
			return err
		}
		n, err := parse(b)
		if err != nil {
			return fmt.Errorf("reading %s: %w", name, err)
		}
		mds, err := parser.Parse(n)
		if err != nil {
			return fmt.Errorf("reading %s: %w", name, err)
		}
		for _, md := range mds {
			p.Add(md)
		}
		return nil
	})
}
