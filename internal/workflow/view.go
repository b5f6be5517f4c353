package workflow

// View holds the presentation flags for a stage: which panels are visible
// and which spinners run. Adapters render it; they never decide it.
type View struct {
	Stage       Stage
	ShowCamera  bool
	ShowPreview bool
	ShowOCR     bool
	OCRLoading  bool
	ShowPrompt  bool
	ShowResult  bool
	AILoading   bool
	Error       string
}

// ViewOf derives the presentation flags for a stage
func ViewOf(stage Stage, errMsg string) View {
	v := View{Stage: stage, Error: errMsg}
	switch stage {
	case Capturing:
		v.ShowCamera = true
	case Previewing:
		v.ShowPreview = true
	case Recognizing:
		v.ShowPreview = true
		v.ShowOCR = true
		v.OCRLoading = true
	case ReviewingText:
		v.ShowPreview = true
		v.ShowOCR = true
		v.ShowPrompt = true
	case Analyzing:
		v.ShowPreview = true
		v.ShowOCR = true
		v.ShowPrompt = true
		v.ShowResult = true
		v.AILoading = true
	case ShowingResult:
		v.ShowPreview = true
		v.ShowOCR = true
		v.ShowPrompt = true
		v.ShowResult = true
	}
	return v
}
