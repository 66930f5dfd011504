package universeid

import (
	"strconv"
	"sync/atomic"

	"github.com/operator-framework/amb/pkg/amb"
)

var _ amb.IDProvider = &Counter{}

// Counter hands out monotonically increasing identifiers starting at 1.
type Counter struct {
	id int64
}

func NewCounter() *Counter {
	return &Counter{}
}

func (c *Counter) NextID() amb.UniverseID {
	return amb.UniverseID(strconv.FormatInt(atomic.AddInt64(&c.id, 1), 10))
}
