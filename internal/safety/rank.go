package safety

import (
	"cmp"
	"slices"
)

// RouteSet is an ordered, read-only collection of routes, safest first.
type RouteSet struct {
	routes []Route
}

// Rank orders routes by descending safety score, breaking ties by ascending ID.
// The order is total, so the result does not depend on the input permutation,
// and ranking an already ranked set returns the same order.
func Rank(routes []Route) RouteSet {
	ranked := make([]Route, len(routes))
	copy(ranked, routes)

	slices.SortStableFunc(ranked, func(a, b Route) int {
		if c := cmp.Compare(b.SafetyScore, a.SafetyScore); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	return RouteSet{routes: ranked}
}

// Routes returns a copy of the ranked routes.
func (s RouteSet) Routes() []Route {
	out := make([]Route, len(s.routes))
	copy(out, s.routes)
	return out
}

// Len returns the number of routes.
func (s RouteSet) Len() int { return len(s.routes) }

// IsEmpty reports whether the set holds no routes.
func (s RouteSet) IsEmpty() bool { return len(s.routes) == 0 }

// Route returns the route with the given ID. The pointer refers into the set
// and must not be modified.
func (s RouteSet) Route(id int) (*Route, bool) {
	for i := range s.routes {
		if s.routes[i].ID == id {
			return &s.routes[i], true
		}
	}
	return nil, false
}

// Best returns the safest route.
func (s RouteSet) Best() (*Route, bool) {
	if len(s.routes) == 0 {
		return nil, false
	}
	return &s.routes[0], true
}
