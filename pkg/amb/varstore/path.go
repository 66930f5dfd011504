package varstore

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/operator-framework/amb/pkg/amb"
)

const Separator = "/"

// Path addresses a variable as an ordered sequence of segments. The empty
// path is the root container.
type Path []string

// ParsePath splits a slash separated path. Leading and trailing slashes
// are ignored, so "", "/" and "/a/b/" are valid. Segments are normalized
// to NFC.
func ParsePath(s string) (Path, error) {
	s = strings.Trim(s, Separator)
	if s == "" {
		return Path{}, nil
	}
	return clean(strings.Split(s, Separator))
}

func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Path) String() string {
	return Separator + strings.Join(p, Separator)
}

// Child returns a new path extending p with names.
func (p Path) Child(names ...string) Path {
	out := make(Path, 0, len(p)+len(names))
	out = append(out, p...)
	return append(out, names...)
}

// Parent returns the path of the container holding p. The parent of the
// root is the root.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return Path{}
	}
	return p[: len(p)-1 : len(p)-1]
}

// Name returns the last segment of p, or "" for the root.
func (p Path) Name() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

func (p Path) Equal(o Path) bool {
	return p.key() == o.key()
}

func (p Path) key() string {
	return strings.Join(p, "\x00")
}

func clean(p Path) (Path, error) {
	out := make(Path, len(p))
	for i, segment := range p {
		if segment == "" || strings.Contains(segment, Separator) {
			return nil, fmt.Errorf("%w: segment %d of %q", amb.ErrInvalidPath, i, strings.Join(p, Separator))
		}
		out[i] = norm.NFC.String(segment)
	}
	return out, nil
}
