package resilience

// TripStrategy decides when a closed breaker opens. Implementations are used
// under the registry lock and need no locking of their own.
type TripStrategy interface {
	// OnFailure records a failure and reports whether the breaker should trip.
	OnFailure() bool
	OnSuccess()
	Reset()
}

// FailureCount trips after Max consecutive failures.
type FailureCount struct {
	Max         int
	consecutive int
}

func NewFailureCount(max int) *FailureCount {
	return &FailureCount{Max: max}
}

func (f *FailureCount) OnFailure() bool {
	f.consecutive++
	return f.consecutive >= f.Max
}

func (f *FailureCount) OnSuccess() {
	f.consecutive = 0
}

func (f *FailureCount) Reset() {
	f.consecutive = 0
}

// FailureRate trips when the failure ratio over the last Window calls exceeds
// Threshold, once at least MinCalls have been observed.
type FailureRate struct {
	Window    int
	MinCalls  int
	Threshold float64

	outcomes []bool
	next     int
	filled   int
	failures int
}

func NewFailureRate(window, minCalls int, threshold float64) *FailureRate {
	if window <= 0 {
		window = 1
	}
	return &FailureRate{
		Window:    window,
		MinCalls:  minCalls,
		Threshold: threshold,
		outcomes:  make([]bool, window),
	}
}

func (f *FailureRate) push(failed bool) {
	if f.filled == f.Window {
		if f.outcomes[f.next] {
			f.failures--
		}
	} else {
		f.filled++
	}
	f.outcomes[f.next] = failed
	if failed {
		f.failures++
	}
	f.next = (f.next + 1) % f.Window
}

func (f *FailureRate) OnFailure() bool {
	f.push(true)
	if f.filled < f.MinCalls {
		return false
	}
	return float64(f.failures)/float64(f.filled) > f.Threshold
}

func (f *FailureRate) OnSuccess() {
	f.push(false)
}

func (f *FailureRate) Reset() {
	for i := range f.outcomes {
		f.outcomes[i] = false
	}
	f.next, f.filled, f.failures = 0, 0, 0
}
