package objecttype

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/robofit/arcor2-sub002/internal/common/logger"
)

// Registry caches ObjectType metadata by name. It is safe for concurrent
// use: readers (GetObjectTypes, GetActions, dispatcher preconditions) take
// the read lock, mutators (NewObjectType, UpdateObjectModel, DeleteObjectTypes)
// take the write lock.
type Registry struct {
	types  map[string]*ObjectType
	mu     sync.RWMutex
	logger *logger.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		types:  make(map[string]*ObjectType),
		logger: log,
	}
}

// LoadBuiltins populates the registry with the non-removable ancestor types
// (Generic, GenericWithPose, CollisionObject, Robot) and the virtual action
// libraries (logic, time, random, flow).
func (r *Registry) LoadBuiltins() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range Builtins() {
		r.types[t.Name] = t
		r.logger.Info("loaded builtin object type", zap.String("name", t.Name))
	}
}

// LoadFromSource parses a directory of ObjectType source files with parser
// and registers every type it finds. Invalid types are not dropped: they are
// registered with Disabled=true and Problem set, so GetObjectTypes still
// reports them as present-but-unusable.
func (r *Registry) LoadFromSource(dir string, parser SourceParser) error {
	parsed, err := parser.ParseDir(dir)
	if err != nil {
		return fmt.Errorf("parse object type sources: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range parsed {
		r.types[t.Name] = t
		if t.Disabled {
			r.logger.Warn("object type disabled", zap.String("name", t.Name), zap.String("problem", t.Problem))
		} else {
			r.logger.Info("loaded object type", zap.String("name", t.Name))
		}
	}
	return nil
}

// Register adds or replaces a single ObjectType, used by NewObjectType and
// UpdateObjectModel.
func (r *Registry) Register(t *ObjectType) error {
	if t.Name == "" {
		return fmt.Errorf("object type must have a name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.types[t.Name] = t
	r.logger.Info("registered object type", zap.String("name", t.Name))
	return nil
}

// Unregister removes a type, used by DeleteObjectTypes. It refuses to
// remove a builtin family ancestor.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, exists := r.types[name]
	if !exists {
		return fmt.Errorf("object type %q not found", name)
	}
	if isBuiltinFamilyName(t.Name) {
		return fmt.Errorf("object type %q is a built-in ancestor and cannot be removed", name)
	}

	delete(r.types, name)
	r.logger.Info("unregistered object type", zap.String("name", name))
	return nil
}

// Get returns one type by name.
func (r *Registry) Get(name string) (*ObjectType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, exists := r.types[name]
	if !exists {
		return nil, fmt.Errorf("object type %q not found", name)
	}
	return t, nil
}

// List returns every registered type, including disabled ones.
func (r *Registry) List() []*ObjectType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*ObjectType, 0, len(r.types))
	for _, t := range r.types {
		result = append(result, t)
	}
	return result
}

// Descendants returns the names of every type whose base chain passes
// through name, name itself included.
func (r *Registry) Descendants(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []string{name}
	frontier := []string{name}
	for len(frontier) > 0 {
		var next []string
		for _, t := range r.types {
			for _, f := range frontier {
				if t.Base == f {
					out = append(out, t.Name)
					next = append(next, t.Name)
				}
			}
		}
		frontier = next
	}
	return out
}

// ResolveCapabilities walks name's base chain and ORs together every
// RobotCapabilities bit set along the way, since a concrete robot type may
// inherit a capability from an intermediate ancestor rather than declaring
// it directly.
func (r *Registry) ResolveCapabilities(name string) RobotCapabilities {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var caps RobotCapabilities
	seen := make(map[string]bool)
	for cur := name; cur != "" && !seen[cur]; {
		seen[cur] = true
		t, ok := r.types[cur]
		if !ok {
			break
		}
		caps |= t.Capabilities
		cur = t.Base
	}
	return caps
}

func isBuiltinFamilyName(name string) bool {
	switch BaseFamily(name) {
	case FamilyGeneric, FamilyGenericWithPose, FamilyCollisionObject, FamilyRobot:
		return true
	}
	return false
}
