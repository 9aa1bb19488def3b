package processor

import "sync/atomic"

// Flag is the process-wide running flag. Every polling loop checks it before
// dispatching and before continuing; clearing it is the only way loops stop.
type Flag struct {
	v atomic.Bool
}

// NewFlag returns a cleared flag.
func NewFlag() *Flag { return &Flag{} }

// MakeTrue sets the flag and reports whether it changed.
func (f *Flag) MakeTrue() bool { return f.v.CompareAndSwap(false, true) }

// MakeFalse clears the flag and reports whether it changed.
func (f *Flag) MakeFalse() bool { return f.v.CompareAndSwap(true, false) }

// IsTrue reports whether the flag is set.
func (f *Flag) IsTrue() bool { return f.v.Load() }
