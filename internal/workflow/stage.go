package workflow

// Stage is the session's position in the scan workflow
type Stage int

const (
	Idle Stage = iota
	Capturing
	Previewing
	Recognizing
	ReviewingText
	Analyzing
	ShowingResult
)

var stageNames = [...]string{
	Idle:          "idle",
	Capturing:     "capturing",
	Previewing:    "previewing",
	Recognizing:   "recognizing",
	ReviewingText: "reviewing-text",
	Analyzing:     "analyzing",
	ShowingResult: "showing-result",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}

// Action is a user event or collaborator outcome fed to Transition
type Action int

const (
	ActionStartCapture Action = iota
	ActionSelectFile
	ActionCaptureFrame
	ActionCancel
	ActionDeviceFailed
	ActionRetake
	ActionProcess
	ActionRecognitionSucceeded
	ActionRecognitionFailed
	ActionAnalyze
	ActionAnalysisSucceeded
	ActionAnalysisFailed
	ActionRevise
	ActionNewScan
)

var actionNames = [...]string{
	ActionStartCapture:         "start capture",
	ActionSelectFile:           "select file",
	ActionCaptureFrame:         "capture frame",
	ActionCancel:               "cancel",
	ActionDeviceFailed:         "device failed",
	ActionRetake:               "retake",
	ActionProcess:              "process",
	ActionRecognitionSucceeded: "recognition succeeded",
	ActionRecognitionFailed:    "recognition failed",
	ActionAnalyze:              "analyze",
	ActionAnalysisSucceeded:    "analysis succeeded",
	ActionAnalysisFailed:       "analysis failed",
	ActionRevise:               "revise",
	ActionNewScan:              "new scan",
}

func (a Action) String() string {
	if a < 0 || int(a) >= len(actionNames) {
		return "unknown"
	}
	return actionNames[a]
}

// Guards carries the session facts transitions depend on. HasInstructions
// ignores whitespace; InstructionsEmpty is true only for an empty string.
type Guards struct {
	HasCapture        bool
	DeviceReady       bool
	HasText           bool
	HasInstructions   bool
	InstructionsEmpty bool
}

// Effect is a set of side effects the controller applies with a transition
type Effect uint16

const (
	EffectOpenDevice Effect = 1 << iota
	EffectReleaseDevice
	EffectStoreCapture
	EffectDiscardCapture
	EffectStartRecognition
	EffectStoreText
	EffectSeedInstructions
	EffectClearText
	EffectStartAnalysis
	EffectStoreResult
	EffectClearResult
)

// Has reports whether all effects in f are set
func (e Effect) Has(f Effect) bool {
	return e&f == f
}

// Step is the outcome of a valid transition
type Step struct {
	From    Stage
	To      Stage
	Effects Effect
}

// Transition computes the next stage and side effects for an action. It is
// pure: the caller applies the returned effects. Invalid combinations return
// ErrInvalidState.
func Transition(stage Stage, action Action, g Guards) (Step, error) {
	step := func(to Stage, effects Effect) (Step, error) {
		return Step{From: stage, To: to, Effects: effects}, nil
	}

	// Any stage resets; instructions survive
	if action == ActionNewScan {
		return step(Idle, EffectReleaseDevice|EffectDiscardCapture|EffectClearText|EffectClearResult)
	}

	switch stage {
	case Idle:
		switch action {
		case ActionStartCapture:
			return step(Capturing, EffectOpenDevice)
		case ActionSelectFile:
			if !g.HasCapture {
				return Step{}, invalidState("the selected file is empty")
			}
			return step(Previewing, EffectStoreCapture)
		}

	case Capturing:
		switch action {
		case ActionCaptureFrame:
			if !g.DeviceReady {
				return Step{}, invalidState("the camera is not ready")
			}
			return step(Previewing, EffectStoreCapture|EffectReleaseDevice)
		case ActionCancel:
			return step(Idle, EffectReleaseDevice)
		case ActionDeviceFailed:
			return step(Idle, EffectReleaseDevice)
		}

	case Previewing:
		switch action {
		case ActionRetake:
			return step(Idle, EffectDiscardCapture)
		case ActionProcess:
			if !g.HasCapture {
				return Step{}, invalidState("capture or upload an image first")
			}
			return step(Recognizing, EffectStartRecognition)
		}

	case Recognizing:
		switch action {
		case ActionRecognitionSucceeded:
			effects := EffectStoreText
			if g.InstructionsEmpty {
				effects |= EffectSeedInstructions
			}
			return step(ReviewingText, effects)
		case ActionRecognitionFailed:
			return step(Previewing, 0)
		}

	case ReviewingText:
		switch action {
		case ActionAnalyze:
			if !g.HasText || !g.HasInstructions {
				return Step{}, invalidState("both text and instructions are required")
			}
			return step(Analyzing, EffectStartAnalysis)
		}

	case Analyzing:
		switch action {
		case ActionAnalysisSucceeded:
			return step(ShowingResult, EffectStoreResult)
		case ActionAnalysisFailed:
			return step(ReviewingText, 0)
		}

	case ShowingResult:
		switch action {
		case ActionRevise:
			return step(ReviewingText, EffectClearResult)
		}
	}

	return Step{}, invalidState("cannot %s while %s", action, stage)
}
