package orchestrator

// Display is the board's screen-rendering surface: status text, the
// standby/neutral emotion, and chat-transcript clearing. Concrete LVGL
// rendering is out of scope (spec.md §1's "external collaborators");
// this is only the interface the orchestrator drives it through.
type Display interface {
	SetStatus(status string)
	ClearChat()
}

// WakeWordDetector starts/stops local wake-word listening, armed whenever
// the device is not itself capturing or speaking.
type WakeWordDetector interface {
	Start()
	Stop()
}
