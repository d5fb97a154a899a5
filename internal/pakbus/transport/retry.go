package transport

// vtimeSteps is the adaptive back-off table, in tenths of a second.
// Index 0 is the starting vtime; RetryOnFail walks forward from
// whatever index the caller is currently at.
var vtimeSteps = [9]int{2, 5, 10, 20, 30, 50, 100, 200, 600}

// NumMaxRetry bounds RetryOnFail to 8 escalation steps across the
// 9-entry table above: index 0 is the starting point and indices
// 1..8 are reachable.
const NumMaxRetry = 8

// RetryBackoff walks the adaptive vtime escalation. Each call to
// Next advances to the next table entry and applies it to the
// transport; once all NumMaxRetry steps are exhausted, Next returns
// false and leaves the transport's timeout unchanged.
type RetryBackoff struct {
	t     *Transport
	index int
}

// NewRetryBackoff starts a back-off sequence at vtimeSteps[0].
func NewRetryBackoff(t *Transport) *RetryBackoff {
	return &RetryBackoff{t: t, index: 0}
}

// Next escalates vtime to the next step and reports whether a step
// was available.
func (r *RetryBackoff) Next() (bool, error) {
	if r.index >= NumMaxRetry {
		return false, nil
	}
	r.index++
	if err := r.t.SetTimeout(vtimeSteps[r.index]); err != nil {
		return false, err
	}
	return true, nil
}

// Reset returns the back-off to its starting step without touching
// the transport.
func (r *RetryBackoff) Reset() { r.index = 0 }
