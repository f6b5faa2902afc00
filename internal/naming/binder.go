package naming

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	ErrNameNotFound = errors.New("name not found")
	ErrAlreadyBound = errors.New("name already bound")
)

// Registry is the naming store: absolute JNDI names mapped to bound values.
type Registry struct {
	mu       sync.RWMutex
	bindings map[string]any
}

func NewRegistry() *Registry {
	return &Registry{bindings: make(map[string]any)}
}

func (r *Registry) Bind(name string, v any) error {
	name = Parse(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bindings[name]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyBound, name)
	}
	r.bindings[name] = v
	return nil
}

func (r *Registry) Unbind(name string) bool {
	name = Parse(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.bindings[name]
	delete(r.bindings, name)
	return ok
}

func (r *Registry) Lookup(name string) (any, error) {
	name = Parse(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.bindings[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNameNotFound, name)
	}
	return v, nil
}

// List returns the bound names under prefix, sorted.
func (r *Registry) List(prefix string) []string {
	if prefix != "" {
		prefix = Parse(prefix)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for n := range r.bindings {
		if strings.HasPrefix(n, prefix) {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// BinderService binds the value of its source dependency while up. Both the source value and the
// registry are injected.
type BinderService struct {
	name   string
	logger zerolog.Logger

	store *Registry
	value any
}

func NewBinderService(jndiName string, logger zerolog.Logger) *BinderService {
	name := Parse(jndiName)
	return &BinderService{
		name:   name,
		logger: logger.With().Str("component", "binder").Str("jndi-name", name).Logger(),
	}
}

func (s *BinderService) JNDIName() string { return s.name }

// InjectStore receives the *Registry of the naming store service.
func (s *BinderService) InjectStore(v any) error {
	r, ok := v.(*Registry)
	if !ok {
		return fmt.Errorf("naming store has unexpected type %T", v)
	}
	s.store = r
	return nil
}

// InjectValue receives the value to bind.
func (s *BinderService) InjectValue(v any) error {
	s.value = v
	return nil
}

func (s *BinderService) Start(context.Context) error {
	if s.store == nil {
		return fmt.Errorf("no naming store for %s", s.name)
	}
	if err := s.store.Bind(s.name, s.value); err != nil {
		return err
	}
	s.logger.Debug().Msg("bound")
	return nil
}

func (s *BinderService) Stop(context.Context) {
	if s.store != nil && s.store.Unbind(s.name) {
		s.logger.Debug().Msg("unbound")
	}
}

func (s *BinderService) Value() any { return s.value }
