// Package filters keeps the acceptance filter table: which frame ids reach a
// bus's receive queue. The table is read by the controller goroutines and
// replaced by the main loop, so each bus's filter set is swapped as a whole.
package filters

import (
	"sort"
	"sync"
	"sync/atomic"

	"can-translator/signals"

	"github.com/cockroachdb/errors"
)

// MaxFilters is the most ids a bus can filter on before it falls back to
// pass-all.
const MaxFilters = 32

// Filter is one acceptance entry.
type Filter struct {
	Number   int
	ID       uint32
	Extended bool
	Channel  int
}

func (f Filter) frameID() signals.FrameID {
	return signals.FrameID{ID: f.ID, Extended: f.Extended}
}

// Configurer is the part of a bus controller that programs filters.
type Configurer interface {
	ConfigureFilters(entries []Filter) error
}

type filterSet struct {
	passAll bool
	ids     map[signals.FrameID]struct{}
}

var passAllSet = &filterSet{passAll: true}

// Build derives the filter entries for every bus from the ids that carry
// signals. A bus with more than MaxFilters ids gets no entries, which puts it
// in pass-all mode.
func Build(dict *signals.Dictionary, logger signals.Logger) map[int][]Filter {
	result := make(map[int][]Filter, len(dict.Buses))
	for _, bus := range dict.Buses {
		ids := dict.MessageIDs(bus)
		if len(ids) > MaxFilters {
			if logger != nil {
				logger.Warn("Bus %d needs %d filters, more than %d; accepting all frames",
					bus.Address, len(ids), MaxFilters)
			}
			result[bus.Address] = nil
			continue
		}

		sort.Slice(ids, func(i, j int) bool {
			if ids[i].ID != ids[j].ID {
				return ids[i].ID < ids[j].ID
			}
			return !ids[i].Extended && ids[j].Extended
		})
		entries := make([]Filter, 0, len(ids))
		for i, id := range ids {
			entries = append(entries, Filter{Number: i, ID: id.ID, Extended: id.Extended, Channel: bus.Address})
		}
		result[bus.Address] = entries
	}
	return result
}

// Append adds standard frame ids to a bus's entries. Empty entries mean
// pass-all and stay nil, as does a result that would exceed MaxFilters.
func Append(entries []Filter, channel int, ids ...uint32) []Filter {
	if len(entries) == 0 {
		return nil
	}
	for _, id := range ids {
		dup := false
		for _, e := range entries {
			if e.ID == id && !e.Extended {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		if len(entries) >= MaxFilters {
			return nil
		}
		entries = append(entries, Filter{Number: len(entries), ID: id, Channel: channel})
	}
	return entries
}

// Table holds the filter set in effect for each bus.
type Table struct {
	mu   sync.Mutex
	sets sync.Map // bus address -> *atomic.Pointer[filterSet]
}

func NewTable() *Table {
	return &Table{}
}

func (t *Table) slot(address int) *atomic.Pointer[filterSet] {
	if p, ok := t.sets.Load(address); ok {
		return p.(*atomic.Pointer[filterSet])
	}
	p, _ := t.sets.LoadOrStore(address, new(atomic.Pointer[filterSet]))
	return p.(*atomic.Pointer[filterSet])
}

// Configure replaces the filter set of bus. The new set is assembled first,
// handed to controller (which may be nil), and only then made visible to
// Accept. On a controller error the previous set stays in effect.
func (t *Table) Configure(bus *signals.Bus, entries []Filter, controller Configurer) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := passAllSet
	if !bus.BypassFilters && len(entries) > 0 {
		next = &filterSet{ids: make(map[signals.FrameID]struct{}, len(entries))}
		for _, e := range entries {
			next.ids[e.frameID()] = struct{}{}
		}
	} else {
		entries = nil
	}

	if controller != nil {
		if err := controller.ConfigureFilters(entries); err != nil {
			return errors.Wrapf(err, "failed to configure filters on bus %d", bus.Address)
		}
	}

	t.slot(bus.Address).Store(next)
	return nil
}

// Accept reports whether a frame with id may enter the bus receive queue. A
// bus that was never configured accepts everything.
func (t *Table) Accept(address int, id uint32, extended bool) bool {
	set := t.slot(address).Load()
	if set == nil || set.passAll {
		return true
	}
	_, ok := set.ids[signals.FrameID{ID: id, Extended: extended}]
	return ok
}

// PassAll reports whether the bus accepts every frame.
func (t *Table) PassAll(address int) bool {
	set := t.slot(address).Load()
	return set == nil || set.passAll
}

// Len returns the number of ids the bus filters on, zero in pass-all mode.
func (t *Table) Len(address int) int {
	set := t.slot(address).Load()
	if set == nil {
		return 0
	}
	return len(set.ids)
}
