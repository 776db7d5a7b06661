package booth

// Status messages shown by the frontend overlay.
const (
	MsgGetReady      = "Get Ready..."
	MsgSmile         = "SMILE!"
	MsgSaved         = "Saved Locally!"
	MsgCaptureFailed = "Capture Failed!"
	MsgSaveFailed    = "Save Failed!"
)

// State is the orchestrator phase.
type State int

const (
	Idle State = iota
	CountingDown
	Capturing
	Cooldown
)

func (s State) String() string {
	switch s {
	case CountingDown:
		return "counting_down"
	case Capturing:
		return "capturing"
	case Cooldown:
		return "cooldown"
	default:
		return "idle"
	}
}

// Status is the read-only view of the booth consumed by the UI.
// Countdown is nil outside a capture sequence and 0 from "SMILE!" until
// the sequence ends.
type Status struct {
	Countdown *int   `json:"countdown"`
	Message   string `json:"message"`
	Flash     bool   `json:"flash"`
}

// Equal reports whether two snapshots render identically.
func (s Status) Equal(o Status) bool {
	if s.Message != o.Message || s.Flash != o.Flash {
		return false
	}
	if s.Countdown == nil || o.Countdown == nil {
		return s.Countdown == nil && o.Countdown == nil
	}
	return *s.Countdown == *o.Countdown
}
