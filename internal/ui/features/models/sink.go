package models

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/leapstack-labs/livetable/pkg/live"
	"github.com/leapstack-labs/livetable/pkg/table"
	"github.com/starfederation/datastar-go/datastar"
)

// signalSink forwards deliveries to one browser as datastar signal patches
// under models.<name>.
type signalSink struct {
	name string
	sse  *datastar.ServerSentEventGenerator

	mu     sync.Mutex
	seq    int
	closed atomic.Bool
}

var _ live.Sink[int64] = (*signalSink)(nil)

func newSignalSink(name string, sse *datastar.ServerSentEventGenerator) *signalSink {
	return &signalSink{name: name, sse: sse}
}

// Close detaches the sink.
func (s *signalSink) Close() { s.closed.Store(true) }

// Attached implements live.Sink.
func (s *signalSink) Attached() bool { return !s.closed.Load() }

// Apply implements live.Sink.
func (s *signalSink) Apply(d live.Delivery[int64]) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	payload, err := encodeDelivery(s.seq, d)
	if err != nil {
		return err
	}
	signals := map[string]any{"models": map[string]any{s.name: payload}}
	if err := s.sse.MarshalAndPatchSignals(signals); err != nil {
		s.closed.Store(true)
		return fmt.Errorf("model %q: %w", s.name, err)
	}
	return nil
}

// deliveryPayload is the browser form of a delivery. Patch cells are
// [position, value] pairs indexing Keys.
type deliveryPayload struct {
	Seq     int                `json:"seq"`
	Kind    string             `json:"kind"`
	Columns []string           `json:"columns,omitempty"`
	Keys    []int64            `json:"keys"`
	Rows    [][]any            `json:"rows,omitempty"`
	Cells   map[string][][]any `json:"cells,omitempty"`
}

func encodeDelivery(seq int, d live.Delivery[int64]) (deliveryPayload, error) {
	p := deliveryPayload{Seq: seq, Kind: d.Kind.String()}
	switch d.Kind {
	case live.KindPatch:
		p.Keys = d.Patch.Keys
		p.Cells = make(map[string][][]any, len(d.Patch.Columns))
		for col, cells := range d.Patch.Columns {
			pairs := make([][]any, len(cells))
			for i, c := range cells {
				pairs[i] = []any{c.Pos, c.Value}
			}
			p.Cells[col] = pairs
		}
	case live.KindStream, live.KindReplace:
		p.Columns = d.Table.Names()
		p.Keys = d.Table.Keys()
		p.Rows = rows(d.Table)
	default:
		return p, fmt.Errorf("unsupported delivery %s", d.Kind)
	}
	return p, nil
}

func rows(t *table.Table[int64]) [][]any {
	out := make([][]any, 0, t.Len())
	_ = t.Rows(func(r table.Row[int64]) error {
		out = append(out, r.Values)
		return nil
	})
	return out
}
