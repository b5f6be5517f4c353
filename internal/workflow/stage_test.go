package workflow

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Transition", func() {
	all := Guards{HasCapture: true, DeviceReady: true, HasText: true, HasInstructions: true}

	DescribeTable("valid transitions",
		func(from Stage, action Action, g Guards, to Stage, effects Effect) {
			step, err := Transition(from, action, g)
			Expect(err).NotTo(HaveOccurred())
			Expect(step.From).To(Equal(from))
			Expect(step.To).To(Equal(to))
			Expect(step.Effects).To(Equal(effects))
		},
		Entry("start capture", Idle, ActionStartCapture, all, Capturing, EffectOpenDevice),
		Entry("select file", Idle, ActionSelectFile, all, Previewing, EffectStoreCapture),
		Entry("capture frame", Capturing, ActionCaptureFrame, all, Previewing, EffectStoreCapture|EffectReleaseDevice),
		Entry("cancel capture", Capturing, ActionCancel, all, Idle, EffectReleaseDevice),
		Entry("device failure", Capturing, ActionDeviceFailed, all, Idle, EffectReleaseDevice),
		Entry("retake", Previewing, ActionRetake, all, Idle, EffectDiscardCapture),
		Entry("process", Previewing, ActionProcess, all, Recognizing, EffectStartRecognition),
		Entry("recognition success keeps typed instructions", Recognizing, ActionRecognitionSucceeded, all, ReviewingText, EffectStoreText),
		Entry("recognition success seeds empty instructions", Recognizing, ActionRecognitionSucceeded, Guards{InstructionsEmpty: true}, ReviewingText, EffectStoreText|EffectSeedInstructions),
		Entry("recognition success keeps blank instructions", Recognizing, ActionRecognitionSucceeded, Guards{}, ReviewingText, EffectStoreText),
		Entry("recognition failure", Recognizing, ActionRecognitionFailed, all, Previewing, Effect(0)),
		Entry("analyze", ReviewingText, ActionAnalyze, all, Analyzing, EffectStartAnalysis),
		Entry("analysis success", Analyzing, ActionAnalysisSucceeded, all, ShowingResult, EffectStoreResult),
		Entry("analysis failure", Analyzing, ActionAnalysisFailed, all, ReviewingText, Effect(0)),
		Entry("revise", ShowingResult, ActionRevise, all, ReviewingText, EffectClearResult),
	)

	DescribeTable("new scan resets every stage",
		func(from Stage) {
			step, err := Transition(from, ActionNewScan, Guards{})
			Expect(err).NotTo(HaveOccurred())
			Expect(step.To).To(Equal(Idle))
			Expect(step.Effects.Has(EffectReleaseDevice | EffectDiscardCapture | EffectClearText)).To(BeTrue())
			Expect(step.Effects.Has(EffectSeedInstructions)).To(BeFalse())
		},
		Entry("idle", Idle),
		Entry("capturing", Capturing),
		Entry("previewing", Previewing),
		Entry("recognizing", Recognizing),
		Entry("reviewing-text", ReviewingText),
		Entry("analyzing", Analyzing),
		Entry("showing-result", ShowingResult),
	)

	DescribeTable("rejected transitions",
		func(from Stage, action Action, g Guards) {
			_, err := Transition(from, action, g)
			Expect(err).To(MatchError(ErrInvalidState))
		},
		Entry("process while idle", Idle, ActionProcess, all),
		Entry("process without capture", Previewing, ActionProcess, Guards{}),
		Entry("analyze without text", ReviewingText, ActionAnalyze, Guards{HasInstructions: true}),
		Entry("analyze without instructions", ReviewingText, ActionAnalyze, Guards{HasText: true}),
		Entry("second recognition", Recognizing, ActionProcess, all),
		Entry("analyze while recognizing", Recognizing, ActionAnalyze, all),
		Entry("second analysis", Analyzing, ActionAnalyze, all),
		Entry("second capture", Capturing, ActionStartCapture, all),
		Entry("capture before the camera is ready", Capturing, ActionCaptureFrame, Guards{}),
		Entry("empty file", Idle, ActionSelectFile, Guards{}),
		Entry("select file while previewing", Previewing, ActionSelectFile, all),
		Entry("retake while idle", Idle, ActionRetake, all),
		Entry("cancel while previewing", Previewing, ActionCancel, all),
		Entry("revise while reviewing", ReviewingText, ActionRevise, all),
	)

	It("names stages the way the UI does", func() {
		Expect(ReviewingText.String()).To(Equal("reviewing-text"))
		Expect(ShowingResult.String()).To(Equal("showing-result"))
		Expect(Stage(99).String()).To(Equal("unknown"))
	})
})

var _ = Describe("ViewOf", func() {
	It("shows nothing while idle", func() {
		Expect(ViewOf(Idle, "")).To(Equal(View{Stage: Idle}))
	})

	It("shows only the camera while capturing", func() {
		v := ViewOf(Capturing, "")
		Expect(v.ShowCamera).To(BeTrue())
		Expect(v.ShowPreview).To(BeFalse())
	})

	It("spins the OCR loader while recognizing", func() {
		v := ViewOf(Recognizing, "")
		Expect(v.ShowPreview).To(BeTrue())
		Expect(v.OCRLoading).To(BeTrue())
		Expect(v.ShowPrompt).To(BeFalse())
	})

	It("spins the AI loader while analyzing", func() {
		v := ViewOf(Analyzing, "")
		Expect(v.ShowResult).To(BeTrue())
		Expect(v.AILoading).To(BeTrue())
	})

	It("carries the error message", func() {
		Expect(ViewOf(ReviewingText, "Error: boom").Error).To(Equal("Error: boom"))
	})
})
