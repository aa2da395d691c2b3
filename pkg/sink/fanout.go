package sink

import "github.com/andrej220/synctity/pkg/runner"

// Fanout hands every event to each sink in order.
type Fanout []runner.Sink

func (f Fanout) Emit(ev runner.Event) {
	for _, s := range f {
		if s != nil {
			s.Emit(ev)
		}
	}
}
