// contest/resolver.go
// Copyright(c) 2023-2026 flytrace contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package contest

import (
	"errors"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/mmorken/flytrace/log"
)

// SimulatorSuffix marks tracker ids used by simulators; such traffic is
// resolved to the real contestant but flagged so it stays off the global
// map.
const SimulatorSuffix = "_simulator"

var ErrNoContestant = errors.New("no contestant for tracker")

// Source provides contestant lookups; it is implemented by the admin data
// layer, which is outside this system.
type Source interface {
	// ContestantAt returns the contestant bound to the given tracker
	// whose tracking window contains t, or nil.
	ContestantAt(kind TrackerKind, trackerID string, t time.Time) (*Contestant, error)
}

type resolverKey struct {
	kind   TrackerKind
	id     string
	minute int64
}

// Resolver maps (tracker kind, tracker id, time) to a contestant, caching
// results per coarse minute to amortise repository lookups.
type Resolver struct {
	source Source
	cache  *expirable.LRU[resolverKey, *Contestant]
	lg     *log.Logger
}

func NewResolver(source Source, ttl time.Duration, lg *log.Logger) *Resolver {
	if ttl == 0 {
		ttl = time.Minute
	}
	return &Resolver{
		source: source,
		cache:  expirable.NewLRU[resolverKey, *Contestant](4096, nil, ttl),
		lg:     lg,
	}
}

// Resolve returns the contestant owning the given tracker at the given
// time and whether the report is simulator traffic.  A nil contestant
// with nil error means no contestant is active for the tracker; negative
// results are cached too.
func (r *Resolver) Resolve(kind TrackerKind, trackerID string, at time.Time) (*Contestant, bool, error) {
	simulator := strings.HasSuffix(trackerID, SimulatorSuffix)
	id := strings.TrimSuffix(trackerID, SimulatorSuffix)

	key := resolverKey{kind: kind, id: id, minute: at.Unix() / 60}
	if c, ok := r.cache.Get(key); ok {
		return c, simulator, nil
	}

	c, err := r.source.ContestantAt(kind, id, at)
	if err != nil {
		return nil, simulator, err
	}
	if c != nil && !c.Tracking(at) {
		// The source is not required to enforce the window.
		c = nil
	}

	r.cache.Add(key, c)
	return c, simulator, nil
}

// Invalidate clears the cache; call when the set of active contestants
// changes.
func (r *Resolver) Invalidate() {
	r.cache.Purge()
	r.lg.Debug("resolver cache invalidated")
}
