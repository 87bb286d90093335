package shape

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/edulake/shapeld/jsonld"
	"github.com/edulake/shapeld/mapping"
	"github.com/edulake/shapeld/shacl"
)

// Shape load failures.
var (
	// ErrNotFound indicates a missing shape directory or file.
	ErrNotFound = errors.New("shape not found")
	// ErrParse indicates a malformed SHACL, context, or mapping file.
	ErrParse = errors.New("shape parse")
	// ErrInvalid indicates files that parse but disagree with each
	// other, such as a mapping referencing terms the shape lacks.
	ErrInvalid = errors.New("shape invalid")
	// ErrUnknownShape indicates a get for a name that was never loaded.
	ErrUnknownShape = errors.New("unknown shape")
)

// Definition is one loaded shape: constraints, context, and mapping,
// shared read-only by every consumer.
type Definition struct {
	// Name is the shape directory name.
	Name string
	// SHACL is the introspected shape graph.
	SHACL *shacl.Introspector
	// Root is the node shape the mapping targets.
	Root *shacl.NodeShapeInfo
	// Context is the parsed JSON-LD context.
	Context *jsonld.Context
	// Mapping is the parsed mapping config.
	Mapping *mapping.Config
	// Dir is the directory the definition was loaded from.
	Dir string
}

// Registry loads shape definitions from search paths and caches them by
// name. Load is idempotent; a second load of the same name returns the
// cached definition. Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	paths  []string
	defs   map[string]*Definition
	logger *slog.Logger
}

// Option configures a [Registry].
type Option func(*Registry)

// WithLogger sets the logger used for load warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		defs:   make(map[string]*Definition),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// AddSearchPath appends a directory searched by Load. A shape named X
// lives in <dir>/X/ as X_SHACL.ttl, x_context.json, and x_mapping.yaml.
func (r *Registry) AddSearchPath(dir string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.paths = append(r.paths, dir)
}

// Get returns a previously loaded definition.
func (r *Registry) Get(name string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if def, ok := r.defs[name]; ok {
		return def, nil
	}

	loaded := make([]string, 0, len(r.defs))
	for n := range r.defs {
		loaded = append(loaded, n)
	}

	sort.Strings(loaded)

	return nil, fmt.Errorf("%w: %q (loaded: %s)", ErrUnknownShape, name, strings.Join(loaded, ", "))
}

// Load finds a shape on the search paths, parses its three files, and
// cross-validates them. Idempotent within a registry instance.
func (r *Registry) Load(name string) (*Definition, error) {
	r.mu.RLock()
	def, ok := r.defs[name]
	paths := r.paths
	r.mu.RUnlock()

	if ok {
		return def, nil
	}

	dir, err := r.findDir(paths, name)
	if err != nil {
		return nil, err
	}

	def, err = LoadDir(name, dir, r.logger)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cached, ok := r.defs[name]; ok {
		return cached, nil
	}

	r.defs[name] = def

	return def, nil
}

// Names lists the shapes discoverable on the search paths, loaded or
// not.
func (r *Registry) Names() ([]string, error) {
	r.mu.RLock()
	paths := r.paths
	r.mu.RUnlock()

	seen := make(map[string]bool)

	var names []string

	for _, dir := range paths {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("%w: search path %q: %w", ErrNotFound, dir, err)
		}

		for _, entry := range entries {
			if !entry.IsDir() || seen[entry.Name()] {
				continue
			}

			if _, err := os.Stat(shaclPath(filepath.Join(dir, entry.Name()), entry.Name())); err != nil {
				continue
			}

			seen[entry.Name()] = true
			names = append(names, entry.Name())
		}
	}

	sort.Strings(names)

	return names, nil
}

func (r *Registry) findDir(paths []string, name string) (string, error) {
	for _, dir := range paths {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w: %q on search paths %v", ErrNotFound, name, paths)
}

func shaclPath(dir, name string) string {
	return filepath.Join(dir, name+"_SHACL.ttl")
}

func contextPath(dir, name string) string {
	return filepath.Join(dir, strings.ToLower(name)+"_context.json")
}

func mappingPath(dir, name string) string {
	return filepath.Join(dir, strings.ToLower(name)+"_mapping.yaml")
}

// LoadDir parses one shape directory without registry caching.
func LoadDir(name, dir string, logger *slog.Logger) (*Definition, error) {
	if logger == nil {
		logger = slog.Default()
	}

	shaclBytes, err := readShapeFile(shaclPath(dir, name))
	if err != nil {
		return nil, err
	}

	ctxBytes, err := readShapeFile(contextPath(dir, name))
	if err != nil {
		return nil, err
	}

	mappingBytes, err := readShapeFile(mappingPath(dir, name))
	if err != nil {
		return nil, err
	}

	in, err := shacl.Parse(shaclBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrParse, shaclPath(dir, name), err)
	}

	ctx, err := jsonld.ParseContext(ctxBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrParse, contextPath(dir, name), err)
	}

	cfg, err := mapping.Parse(mappingBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrParse, mappingPath(dir, name), err)
	}

	def := &Definition{
		Name:    name,
		SHACL:   in,
		Context: ctx,
		Mapping: cfg,
		Dir:     dir,
	}

	def.Root, err = resolveRoot(in, cfg)
	if err != nil {
		return nil, err
	}

	if err := crossValidate(def, logger); err != nil {
		return nil, err
	}

	return def, nil
}

func resolveRoot(in *shacl.Introspector, cfg *mapping.Config) (*shacl.NodeShapeInfo, error) {
	root, err := in.Shape(cfg.Shape)
	if err == nil {
		return root, nil
	}

	// Accept the bare type name against the Shape-suffixed convention.
	if root, suffixed := in.Shape(cfg.Shape + "Shape"); suffixed == nil {
		return root, nil
	}

	return nil, fmt.Errorf("%w: mapping targets %w", ErrInvalid, err)
}

// crossValidate fails on mapping terms undefined in the context or
// missing from the shape, and warns on unused context terms.
func crossValidate(def *Definition, logger *slog.Logger) error {
	used := make(map[string]bool)

	for i := range def.Mapping.Properties {
		slot := &def.Mapping.Properties[i]

		if err := checkTermDefined(def, slot.Name); err != nil {
			return err
		}

		used[slot.Name] = true

		for _, fr := range slot.Fields {
			if err := checkTermDefined(def, fr.Target); err != nil {
				return err
			}

			used[fr.Target] = true
		}
	}

	issues := shacl.CheckMapping(def.Mapping, def.Root, def.Context)

	for _, issue := range issues {
		if issue.Severity == shacl.SeverityError {
			return fmt.Errorf("%w: shape %q: %s", ErrInvalid, def.Name, issue)
		}

		logger.Warn("mapping check", slog.String("shape", def.Name), slog.String("issue", issue.String()))
	}

	for _, term := range def.Context.Terms() {
		if used[term] {
			continue
		}

		// Prefix declarations are not field terms.
		if t, ok := def.Context.Term(term); ok &&
			(strings.HasSuffix(t.IRI, "/") || strings.HasSuffix(t.IRI, "#")) {
			continue
		}

		logger.Debug("context term unused by mapping",
			slog.String("shape", def.Name), slog.String("term", term))
	}

	return nil
}

// checkTermDefined requires every mapping term to resolve through the
// context, either as a declared term or via @vocab.
func checkTermDefined(def *Definition, term string) error {
	if def.Context.HasTerm(term) || def.Context.Vocab != "" {
		return nil
	}

	return fmt.Errorf("%w: shape %q: mapping term %q is not defined in the context and no @vocab is set",
		ErrInvalid, def.Name, term)
}

func readShapeFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}

		return nil, fmt.Errorf("%w: %s: %w", ErrNotFound, path, err)
	}

	return data, nil
}
