package ui

// UI is the front-end surface the interview runner reports into.
type UI interface {
	UpdateStatus(status string)
	UpdateConfidence(confidence float64)
	Say(role, msg string)
	Log(msg string)
}

type SilentUI struct{}

func (s SilentUI) UpdateStatus(status string)          {}
func (s SilentUI) UpdateConfidence(confidence float64) {}
func (s SilentUI) Say(role, msg string)                {}
func (s SilentUI) Log(msg string)                      {}
