// Package relogio abstracts wall-clock access so that billing cutoffs and
// delinquency math are deterministic in tests.
package relogio

import "time"

type Relogio interface {
	Agora() time.Time
}

// Sistema delegates to time.Now.
type Sistema struct{}

func (Sistema) Agora() time.Time { return time.Now() }

// Fixo always returns the same instant (test helper).
type Fixo struct{ T time.Time }

func (f Fixo) Agora() time.Time { return f.T }
