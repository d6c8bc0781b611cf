package availability

import (
	"time"

	"github.com/hackgods/clinic-availability/internal/appointment"
)

// Clock supplies "now" as a naive wall-clock timestamp.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// SystemClock reads the local wall clock.
func SystemClock() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return appointment.Naive(time.Now()) }

// FixedClock always reports the same instant.
type FixedClock time.Time

func (c FixedClock) Now() time.Time { return appointment.Naive(time.Time(c)) }
