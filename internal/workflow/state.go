package workflow

// State is the closed set of reader workflow states. Exactly one is active
// at a time and transitions happen only inside the machine's handlers.
type State string

const (
	StateIdle                State = "IDLE"
	StateAssistantSpeaking   State = "ASSISTANT_SPEAKING"
	StateWaitingForNarration State = "WAITING_FOR_NARRATION"
	StateNarrationPlaying    State = "NARRATION_PLAYING"
	StateNarrationPaused     State = "NARRATION_PAUSED"
	StateSilenceTiming       State = "SILENCE_TIMING"
	StateTurningPage         State = "TURNING_PAGE"
	StateError               State = "ERROR"
)

// InterruptPolicy decides what child speech does while narration is still
// pending (pre-roll armed, nothing playing yet).
type InterruptPolicy string

const (
	// PolicyReset cancels the pre-roll and drops back to IDLE.
	PolicyReset InterruptPolicy = "reset"
	// PolicyRearm cancels the pre-roll but stays waiting; the pre-roll is
	// re-armed when the child stops talking.
	PolicyRearm InterruptPolicy = "rearm"
)

func ParsePolicy(s string) InterruptPolicy {
	if s == string(PolicyRearm) {
		return PolicyRearm
	}
	return PolicyReset
}
