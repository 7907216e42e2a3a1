package queue

// wakeSignal coalesces "work may be available" notifications.
//
// The channel has a buffer of one: any number of Notify calls between two
// receives collapse into a single wake-up, and Notify never blocks.
type wakeSignal struct {
	ch chan struct{}
}

func newWakeSignal() *wakeSignal {
	return &wakeSignal{ch: make(chan struct{}, 1)}
}

// Notify signals availability without blocking.
func (s *wakeSignal) Notify() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// Wait returns the channel to select on.
func (s *wakeSignal) Wait() <-chan struct{} {
	return s.ch
}
