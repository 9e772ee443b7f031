package progress

// Event is one coarse progress update from a long-running action.
type Event struct {
	Fraction float64
	Label    string
}

// Sink receives progress events. Core logic calls it optionally; any UI
// attached decides how to render them.
type Sink interface {
	Report(fraction float64, label string)
}

// Discard drops every event. It is the default when no UI is attached.
var Discard Sink = discard{}

type discard struct{}

func (discard) Report(float64, string) {}

// Func adapts a plain function to the Sink interface.
type Func func(fraction float64, label string)

func (f Func) Report(fraction float64, label string) { f(fraction, label) }

// Channel is a non-blocking Sink backed by a channel. Events are dropped
// when the receiver lags, progress display is best-effort.
type Channel chan Event

func (c Channel) Report(fraction float64, label string) {
	select {
	case c <- Event{Fraction: fraction, Label: label}:
	default:
	}
}
