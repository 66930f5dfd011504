package predicate

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Args are the arguments a predicate instance was required with. They
// must be JSON serializable, since their encoding is part of the
// instance's Key.
type Args struct {
	Positional []interface{}
	Keyword    map[string]interface{}
}

// Int returns the positional argument i as an int. JSON numbers and Go
// integers are both accepted.
func (a Args) Int(i int) (int, error) {
	if i >= len(a.Positional) {
		return 0, fmt.Errorf("missing positional argument %d", i)
	}
	switch v := a.Positional[i].(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("positional argument %d is %v, not an integer", i, v)
		}
		return int(v), nil
	}
	return 0, fmt.Errorf("positional argument %d is %T, not an integer", i, a.Positional[i])
}

// String returns the positional argument i as a string.
func (a Args) String(i int) (string, error) {
	if i >= len(a.Positional) {
		return "", fmt.Errorf("missing positional argument %d", i)
	}
	s, ok := a.Positional[i].(string)
	if !ok {
		return "", fmt.Errorf("positional argument %d is %T, not a string", i, a.Positional[i])
	}
	return s, nil
}

// Key identifies a predicate instance by name and encoded arguments.
// Keyword arguments are encoded with sorted keys, so their order never
// matters. The zero Key is the root of every graph.
type Key struct {
	Name   string
	Args   string
	Kwargs string
}

func NewKey(name string, args Args) (Key, error) {
	positional := args.Positional
	if positional == nil {
		positional = []interface{}{}
	}
	encoded, err := json.Marshal(positional)
	if err != nil {
		return Key{}, fmt.Errorf("invalid arguments for predicate %q: %w", name, err)
	}
	k := Key{Name: name, Args: string(encoded)}
	if len(args.Keyword) > 0 {
		encoded, err = json.Marshal(args.Keyword)
		if err != nil {
			return Key{}, fmt.Errorf("invalid keyword arguments for predicate %q: %w", name, err)
		}
		k.Kwargs = string(encoded)
	}
	return k, nil
}

func (k Key) IsRoot() bool {
	return k == Key{}
}

func (k Key) String() string {
	if k.IsRoot() {
		return "<root>"
	}
	var b strings.Builder
	b.WriteString(k.Name)
	b.WriteByte('(')
	positional := strings.TrimSuffix(strings.TrimPrefix(k.Args, "["), "]")
	b.WriteString(positional)
	if k.Kwargs != "" {
		if positional != "" {
			b.WriteString(", ")
		}
		b.WriteString(k.Kwargs)
	}
	b.WriteByte(')')
	return b.String()
}

func (k Key) less(o Key) bool {
	if k.Name != o.Name {
		return k.Name < o.Name
	}
	if k.Args != o.Args {
		return k.Args < o.Args
	}
	return k.Kwargs < o.Kwargs
}
