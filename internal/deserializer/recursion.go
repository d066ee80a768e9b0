package deserializer

// DefaultMaxNestingDepth is used when Settings.MaxNestingDepth is not positive.
const DefaultMaxNestingDepth = 100

// recursionGuard is the single depth counter of a read. Every resource,
// collection, and raw object or array read calls enter and defers leave.
type recursionGuard struct {
	depth int
	max   int
	peak  int
}

func newRecursionGuard(max int) *recursionGuard {
	if max <= 0 {
		max = DefaultMaxNestingDepth
	}
	return &recursionGuard{max: max}
}

// enter increments the depth. When the limit would be exceeded the depth is
// left unchanged and an error is returned; the caller must not call leave.
func (g *recursionGuard) enter() error {
	if g.depth >= g.max {
		return newError(CodeRecursionLimit, "nesting depth exceeds the configured maximum of %d", g.max)
	}
	g.depth++
	if g.depth > g.peak {
		g.peak = g.depth
	}
	return nil
}

func (g *recursionGuard) leave() {
	if g.depth > 0 {
		g.depth--
	}
}

// Enter and Leave let collaborators such as the spatial reader share the guard.
func (g *recursionGuard) Enter() error { return g.enter() }
func (g *recursionGuard) Leave()       { g.leave() }

// Depth returns the current nesting depth.
func (g *recursionGuard) Depth() int { return g.depth }

func (g *recursionGuard) assertZero(where string) error {
	if g.depth != 0 {
		return newError(CodeInternal, "nesting depth is %d %s a top-level read", g.depth, where)
	}
	return nil
}
