package signals

import (
	"can-translator/clock"
)

// SignalRuntime is the mutable part of a signal. Only the consumer side of
// the pipeline writes it.
type SignalRuntime struct {
	LastValue float64
	Received  bool
	Clock     clock.FrequencyClock
}

// Runtime holds one SignalRuntime per dictionary signal, by index.
type Runtime struct {
	dict    *Dictionary
	signals []SignalRuntime
}

// NewRuntime creates runtime state for every signal in dict. timeFunc may be
// nil to use the system clock.
func NewRuntime(dict *Dictionary, timeFunc clock.TimeFunc) *Runtime {
	r := &Runtime{
		dict:    dict,
		signals: make([]SignalRuntime, len(dict.Signals)),
	}
	for i, s := range dict.Signals {
		r.signals[i].Clock = clock.FrequencyClock{
			Frequency: s.SendFrequency,
			TimeFunc:  timeFunc,
		}
	}
	return r
}

// For returns the runtime state of signal.
func (r *Runtime) For(signal *Signal) *SignalRuntime {
	return &r.signals[signal.index]
}

// Lookup returns the runtime state of the first signal named name.
func (r *Runtime) Lookup(name string) *SignalRuntime {
	s := r.dict.LookupSignal(name)
	if s == nil {
		return nil
	}
	return r.For(s)
}

// Reset forgets every received value and clock tick.
func (r *Runtime) Reset() {
	for i := range r.signals {
		r.signals[i].LastValue = 0
		r.signals[i].Received = false
		r.signals[i].Clock.Reset()
	}
}
