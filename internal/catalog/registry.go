package catalog

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Harshitk-cp/speclens/internal/domain"
	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var ErrRegistryNotInitialized = errors.New("domain registry not initialized")

// Registry resolves domain ids to validated domains. Domains are discovered
// under a root directory once and loaded lazily on first use.
type Registry struct {
	root   string
	logger *zap.Logger

	mu          sync.RWMutex
	initialized bool
	dirs        map[string]string
	cache       map[string]*Domain

	// gen advances on every invalidation; a load that raced one is not cached.
	gen   uint64
	group singleflight.Group
	load  func(ctx context.Context, dir string) (*Domain, error)
}

func NewRegistry(root string, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		root:   root,
		logger: logger,
		dirs:   make(map[string]string),
		cache:  make(map[string]*Domain),
		load:   LoadDir,
	}
}

func (r *Registry) Root() string { return r.root }

// Init discovers domain directories. Calling it again is a no-op.
func (r *Registry) Init(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized {
		return nil
	}
	if err := r.discoverLocked(ctx); err != nil {
		return err
	}
	r.initialized = true
	r.logger.Info("domain registry initialized", zap.String("root", r.root), zap.Int("domains", len(r.dirs)))
	return nil
}

// Refresh rediscovers domain directories and drops every cached domain.
func (r *Registry) Refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		return ErrRegistryNotInitialized
	}
	r.cache = make(map[string]*Domain)
	r.gen++
	return r.discoverLocked(ctx)
}

func (r *Registry) discoverLocked(ctx context.Context) error {
	if r.root == "" {
		return nil
	}
	pattern := filepath.Join(r.root, "**", MetaFile)
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return fmt.Errorf("discover domains: %w", err)
	}
	sort.Strings(matches)

	found := make(map[string]string, len(matches))
	for id, dir := range r.dirs {
		if dir == "" {
			found[id] = dir
		}
	}
	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			return err
		}
		dir := filepath.Dir(m)
		meta, err := ReadMeta(dir)
		if err != nil {
			return err
		}
		if meta.ID == "" {
			return ValidationErrors{{Domain: filepath.Base(dir), Subsystem: "domain", Field: "id", Message: "is required"}}
		}
		if prev, dup := found[meta.ID]; dup {
			return fmt.Errorf("duplicate domain id %q in %s and %s", meta.ID, prev, dir)
		}
		found[meta.ID] = dir
	}
	r.dirs = found
	return nil
}

// Register adds a domain assembled in code. Registering an id that is
// already known fails.
func (r *Registry) Register(d *Domain) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.dirs[d.ID]; exists {
		return fmt.Errorf("domain %q already registered", d.ID)
	}
	r.dirs[d.ID] = d.dir
	r.cache[d.ID] = d
	return nil
}

// Get returns the validated domain for id, loading it on first use.
// Concurrent first callers share a single load, which outlives any one
// caller's cancellation.
func (r *Registry) Get(ctx context.Context, id string) (*Domain, error) {
	r.mu.RLock()
	if !r.initialized {
		r.mu.RUnlock()
		return nil, ErrRegistryNotInitialized
	}
	if d, ok := r.cache[id]; ok {
		r.mu.RUnlock()
		return d, nil
	}
	dir, known := r.dirs[id]
	r.mu.RUnlock()
	if !known {
		return nil, domain.NotFoundf("domain %q not found", id)
	}

	ch := r.group.DoChan(id, func() (any, error) {
		r.mu.RLock()
		gen := r.gen
		r.mu.RUnlock()

		d, err := r.load(context.WithoutCancel(ctx), dir)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		if r.gen == gen && r.initialized {
			r.cache[id] = d
		}
		r.mu.Unlock()
		r.logger.Info("domain loaded",
			zap.String("domain", id),
			zap.String("version", d.Version),
			zap.Int("questions", d.Questions.Len()),
			zap.Int("conflict_rules", d.ConflictRules.Len()))
		return d, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if err := res.Err; err != nil {
		var verrs ValidationErrors
		if errors.As(err, &verrs) {
			r.logger.Error("domain rejected", zap.String("domain", id), zap.Int("errors", len(verrs)), zap.Error(err))
			return nil, &domain.Error{
				Kind:        domain.KindValidation,
				Message:     fmt.Sprintf("domain %q failed validation", id),
				Remediation: "fix the listed problems in the domain configuration",
				Err:         verrs,
			}
		}
		return nil, fmt.Errorf("load domain %q: %w", id, err)
	}
	return res.Val.(*Domain), nil
}

// LoadAll loads every discovered domain and returns all failures joined.
func (r *Registry) LoadAll(ctx context.Context) error {
	var errs []error
	for _, id := range r.IDs() {
		if _, err := r.Get(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.dirs)
}

// Invalidate drops a cached domain so the next Get reloads it.
func (r *Registry) Invalidate(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dirs[id] == "" {
		return
	}
	delete(r.cache, id)
	r.gen++
	r.group.Forget(id)
}

// InvalidatePath invalidates the domain whose directory contains path and
// reports its id.
func (r *Registry) InvalidatePath(path string) (string, bool) {
	r.mu.RLock()
	var match string
	for id, dir := range r.dirs {
		if dir == "" {
			continue
		}
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			match = id
			break
		}
	}
	r.mu.RUnlock()
	if match == "" {
		return "", false
	}
	r.Invalidate(match)
	return match, true
}

// Close clears the cache. The registry must be initialized again before use.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]*Domain)
	r.dirs = make(map[string]string)
	r.initialized = false
	r.gen++
}
