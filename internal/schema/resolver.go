package schema

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

var ErrUnresolved = errors.New("unresolved expression")

// Resolver resolves "${name[,name...][:default]}" expressions.
type Resolver interface {
	Resolve(expr string) (string, error)
}

// NopResolver resolves only expressions carrying a default.
type NopResolver struct{}

func (NopResolver) Resolve(expr string) (string, error) {
	return expand(expr, func(string) (string, bool) { return "", false })
}

// PropertyResolver looks names up in Properties, then in the environment with an "env." prefix.
type PropertyResolver struct {
	Properties map[string]string
}

func NewPropertyResolver(props map[string]string) *PropertyResolver {
	if props == nil {
		props = map[string]string{}
	}
	return &PropertyResolver{Properties: props}
}

func (p *PropertyResolver) Resolve(expr string) (string, error) {
	return expand(expr, func(name string) (string, bool) {
		if v, ok := p.Properties[name]; ok {
			return v, true
		}
		if env, ok := strings.CutPrefix(name, "env."); ok {
			return os.LookupEnv(env)
		}
		return "", false
	})
}

func expand(expr string, lookup func(string) (string, bool)) (string, error) {
	var sb strings.Builder
	rest := expr
	for {
		start := strings.Index(rest, "${")
		if start < 0 {
			sb.WriteString(rest)
			return sb.String(), nil
		}
		end := strings.Index(rest[start:], "}")
		if end < 0 {
			sb.WriteString(rest)
			return sb.String(), nil
		}
		end += start
		sb.WriteString(rest[:start])
		body := rest[start+2 : end]
		names, def, hasDef := strings.Cut(body, ":")
		resolved := false
		for _, n := range strings.Split(names, ",") {
			if v, ok := lookup(strings.TrimSpace(n)); ok {
				sb.WriteString(v)
				resolved = true
				break
			}
		}
		if !resolved {
			if !hasDef {
				return "", fmt.Errorf("%w: %s", ErrUnresolved, rest[start:end+1])
			}
			sb.WriteString(def)
		}
		rest = rest[end+1:]
	}
}
