// Package pbtime implements the PakBus NSec time value: seconds and
// nanoseconds since the 1990-01-01 UTC epoch.
package pbtime

import "time"

// Epoch is 1990-01-01 00:00:00 UTC expressed against the Unix epoch.
var Epoch = time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)

const nanosPerSecond = 1_000_000_000

// NSec is a PakBus timestamp: seconds and nanoseconds since Epoch.
type NSec struct {
	Sec  int64
	Nsec int32
}

// Add returns n + o with nanoseconds normalized into [0, 1e9).
func (n NSec) Add(o NSec) NSec {
	sec := n.Sec + o.Sec
	nsec := n.Nsec + o.Nsec
	for nsec >= nanosPerSecond {
		nsec -= nanosPerSecond
		sec++
	}
	for nsec < 0 {
		nsec += nanosPerSecond
		sec--
	}
	return NSec{Sec: sec, Nsec: nsec}
}

// Compare returns -1, 0 or 1 as n is less than, equal to, or greater
// than o, lexicographically on (Sec, Nsec).
func (n NSec) Compare(o NSec) int {
	switch {
	case n.Sec < o.Sec:
		return -1
	case n.Sec > o.Sec:
		return 1
	case n.Nsec < o.Nsec:
		return -1
	case n.Nsec > o.Nsec:
		return 1
	default:
		return 0
	}
}

// Before reports whether n occurs strictly before o.
func (n NSec) Before(o NSec) bool { return n.Compare(o) < 0 }

// Time converts n to a time.Time in UTC.
func (n NSec) Time() time.Time {
	return Epoch.Add(time.Duration(n.Sec)*time.Second + time.Duration(n.Nsec))
}

// FromTime converts a time.Time to an NSec relative to Epoch.
func FromTime(t time.Time) NSec {
	d := t.UTC().Sub(Epoch)
	sec := int64(d / time.Second)
	nsec := int32(d % time.Second)
	return NSec{Sec: sec, Nsec: nsec}
}

// FromSeconds builds an NSec from a bare epoch-1990 seconds count.
func FromSeconds(sec int64) NSec { return NSec{Sec: sec} }
