package propstat

import "sync"

// Bound is an extremum that has either been observed or not. An unobserved
// Bound never takes part in a comparison, so no sentinel value can leak into
// a result.
type Bound struct {
	Value   float64 `json:"value"`
	Present bool    `json:"present"`
}

func (b *Bound) raiseTo(v float64) {
	if !b.Present || v > b.Value {
		b.Value = v
		b.Present = true
	}
}

func (b *Bound) lowerTo(v float64) {
	if !b.Present || v < b.Value {
		b.Value = v
		b.Present = true
	}
}

// Extrema is the running pair of aggregates: the largest property size and
// the cheapest positive price. The zero value has observed nothing.
type Extrema struct {
	MaxSize  Bound `json:"max_size"`
	MinPrice Bound `json:"min_price"`
}

// Observe folds one record's fields into e. Prices that are not strictly
// positive are ignored.
func (e *Extrema) Observe(f FieldSet) {
	if f.Size.Valid {
		e.MaxSize.raiseTo(f.Size.Value)
	}
	if f.Price.Valid && f.Price.Value > 0 {
		e.MinPrice.lowerTo(f.Price.Value)
	}
}

// Merge combines other into e. Merge is commutative and associative, and an
// empty Extrema is its identity.
func (e *Extrema) Merge(other Extrema) {
	if other.MaxSize.Present {
		e.MaxSize.raiseTo(other.MaxSize.Value)
	}
	if other.MinPrice.Present {
		e.MinPrice.lowerTo(other.MinPrice.Value)
	}
}

// Empty reports whether neither aggregate has been observed.
func (e Extrema) Empty() bool {
	return !e.MaxSize.Present && !e.MinPrice.Present
}

// guardedExtrema is a global Extrema shared by concurrent workers. It can
// only be touched through merge and snapshot.
type guardedExtrema struct {
	mut     sync.Mutex
	extrema Extrema
}

func (g *guardedExtrema) merge(local Extrema) {
	g.mut.Lock()
	defer g.mut.Unlock()
	g.extrema.Merge(local)
}

func (g *guardedExtrema) snapshot() Extrema {
	g.mut.Lock()
	defer g.mut.Unlock()
	return g.extrema
}
