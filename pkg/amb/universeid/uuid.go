package universeid

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/operator-framework/amb/pkg/amb"
)

var _ amb.IDProvider = &UUID{}

type UUIDProviderFn func() (uuid.UUID, error)

// UUID hands out random identifiers. When the random source fails it
// falls back to a process-local sequence so that IDs stay unique.
type UUID struct {
	nextUUIDFn UUIDProviderFn
	fallback   int64
}

func NewUUID() *UUID {
	return &UUID{
		nextUUIDFn: uuid.NewRandom,
	}
}

func NewCustomUUID(nextUUIDFn UUIDProviderFn) *UUID {
	return &UUID{
		nextUUIDFn: nextUUIDFn,
	}
}

func (p *UUID) NextID() amb.UniverseID {
	id, err := p.nextUUIDFn()
	if err != nil {
		return amb.UniverseID(fmt.Sprintf("fallback-%d", atomic.AddInt64(&p.fallback, 1)))
	}
	return amb.UniverseID(id.String())
}
