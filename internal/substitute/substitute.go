package substitute

import (
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
)

var expression = regexp.MustCompile(`(\$?\$)\(([^)($]+)\)`)

// ErrUnknownVariable is returned if an expression references a namespace
// which is strict but the variable is not defined.
var ErrUnknownVariable = errors.New("unknown variable")

// Vars is a flat variable index, e.g. `matrix.os` => `ubuntu-latest`.
type Vars map[string]string

// Strict namespaces fail on unresolved references. Expressions outside of a strict
// namespace are left untouched, this keeps shell command substitution like `$(date)` intact.
var strictNamespaces = []string{"matrix.", "stage.", "job.", "event."}

func (v Vars) Merge(other Vars) Vars {
	merged := maps.Clone(v)
	if merged == nil {
		merged = make(Vars)
	}

	maps.Copy(merged, other)
	return merged
}

// String replaces all `$(name)` expressions. `$$(name)` escapes to a literal `$(name)`.
func (v Vars) String(str string) (string, error) {
	var parseError error

	result := expression.ReplaceAllStringFunc(str, func(m string) string {
		parts := expression.FindStringSubmatch(m)
		if len(parts) != 3 {
			if parseError == nil {
				parseError = fmt.Errorf("invalid expression wrapper `%s`", m)
			}
			return m
		}

		if parts[1] == `$$` {
			return fmt.Sprintf("$(%s)", parts[2])
		}

		key := strings.TrimSpace(parts[2])
		if val, ok := v[key]; ok {
			return val
		}

		if slices.ContainsFunc(strictNamespaces, func(ns string) bool {
			return strings.HasPrefix(key, ns)
		}) && parseError == nil {
			parseError = fmt.Errorf("%w: `%s`", ErrUnknownVariable, key)
		}

		return m
	})

	return result, parseError
}

// Subst substitutes every given *string, []string and map[string]string in place.
func (v Vars) Subst(substitute ...any) error {
	for _, subst := range substitute {
		switch s := subst.(type) {
		case *string:
			result, err := v.String(*s)
			if err != nil {
				return err
			}

			*s = result
		case []string:
			for k, val := range s {
				result, err := v.String(val)
				if err != nil {
					return err
				}

				s[k] = result
			}
		case map[string]string:
			for k, val := range s {
				result, err := v.String(val)
				if err != nil {
					return err
				}

				s[k] = result
			}
		default:
			return fmt.Errorf("type `%T` not substitutable", s)
		}
	}

	return nil
}
