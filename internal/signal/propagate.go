package signal

import (
	"github.com/roach88/hysim/internal/simerr"
)

// Link is a direct connection between two ports, identified by full name.
type Link struct {
	From string
	To   string
}

// Graph is one hierarchy level's port connectivity.
//
// Ports lists every port in declaration order; the order makes propagation
// and error reporting deterministic.
type Graph struct {
	Ports    []string
	Declared map[string]Kind
	Links    []Link
}

// Propagate assigns a kind to every port reachable from a declared one.
//
// Declared kinds are seeds. Each seed floods its kind across connections;
// a port reached with a different kind than it already holds fails with a
// SIGNAL_CONFLICT naming that port. Ports no seed reaches stay Unknown and
// are left for the caller to default.
func Propagate(g Graph) (map[string]Kind, error) {
	adj := make(map[string][]string, len(g.Ports))
	for _, l := range g.Links {
		adj[l.From] = append(adj[l.From], l.To)
		adj[l.To] = append(adj[l.To], l.From)
	}

	resolved := make(map[string]Kind, len(g.Ports))
	for _, p := range g.Ports {
		resolved[p] = Unknown
	}

	// Check declared peers first so a conflict names the sink side of the
	// first offending link rather than whichever port the flood hits.
	for _, l := range g.Links {
		a, b := g.Declared[l.From], g.Declared[l.To]
		if a != Unknown && b != Unknown && a != b {
			return nil, simerr.NewSignalConflict(l.To, a.String(), b.String())
		}
	}

	for _, seed := range g.Ports {
		kind := g.Declared[seed]
		if kind == Unknown {
			continue
		}
		if cur := resolved[seed]; cur != Unknown {
			if cur != kind {
				return nil, simerr.NewSignalConflict(seed, cur.String(), kind.String())
			}
			continue
		}
		resolved[seed] = kind
		queue := []string{seed}
		for len(queue) > 0 {
			p := queue[0]
			queue = queue[1:]
			for _, peer := range adj[p] {
				switch resolved[peer] {
				case Unknown:
					resolved[peer] = kind
					queue = append(queue, peer)
				case kind:
				default:
					return nil, simerr.NewSignalConflict(peer, kind.String(), resolved[peer].String())
				}
			}
		}
	}
	return resolved, nil
}

// Check verifies that every link joins ports of equal kind.
func Check(kinds map[string]Kind, links []Link) error {
	for _, l := range links {
		if a, b := kinds[l.From], kinds[l.To]; a != b {
			return simerr.NewSignalConflict(l.To, a.String(), b.String())
		}
	}
	return nil
}
