package live

import (
	"fmt"
	"sort"
	"sync"

	"github.com/leapstack-labs/livetable/internal/dag"
)

// MaxDepth bounds the number of derivation levels below a root model.
const MaxDepth = 64

// lineage records the derivation tree a model belongs to. It is shared by a
// root model and everything derived from it and only stores ids and names.
type lineage struct {
	mu    sync.Mutex
	graph *dag.Graph
}

func newLineage(id, name string) *lineage {
	l := &lineage{graph: dag.NewGraph()}
	l.graph.Set(id, name)
	return l
}

func (l *lineage) link(parentID, childID, childName string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.graph.Set(childID, childName)
	if err := l.graph.Link(parentID, childID); err != nil {
		l.graph.Remove(childID)
		return fmt.Errorf("%w: %v", ErrCycle, err)
	}
	return nil
}

func (l *lineage) rename(id, name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.graph.Set(id, name)
}

// forget removes id and every model derived from it. A derived model holds
// its parent, so once id is collected its descendants are gone too.
func (l *lineage) forget(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, d := range l.graph.Downstream(id) {
		l.graph.Remove(d)
	}
	l.graph.Remove(id)
}

// levels returns model names grouped by propagation level.
func (l *lineage) levels() ([][]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids, err := l.graph.Levels()
	if err != nil {
		return nil, err
	}
	out := make([][]string, len(ids))
	for i, level := range ids {
		out[i] = l.names(level)
	}
	return out, nil
}

// downstream returns the names of every model derived, directly or not, from id.
func (l *lineage) downstream(id string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.names(l.graph.Downstream(id))
}

// names maps ids to sorted model names. Callers hold l.mu.
func (l *lineage) names(ids []string) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if name, ok := l.graph.Name(id); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
