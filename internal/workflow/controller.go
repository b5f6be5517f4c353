package workflow

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zombor/receipt-scanner/internal/analysis"
	"github.com/zombor/receipt-scanner/internal/capture"
	"github.com/zombor/receipt-scanner/internal/recognition"
)

var tracer = otel.Tracer("github.com/zombor/receipt-scanner/internal/workflow")

// Messages shown to the user when a stage fails
const (
	msgCameraError      = "Error accessing camera. Please ensure you have granted camera permissions."
	msgNoCamera         = "No camera is configured."
	msgCaptureError     = "Error capturing photo. Please try again."
	msgNotAnImage       = "Please select an image file."
	msgRecognitionError = "Error processing image. Please try again with a clearer image."
)

// Capture is the image a scan works from
type Capture = capture.Image

// InstructionStore remembers the user's instruction text between runs
type InstructionStore interface {
	LoadInstructions() (string, error)
	SaveInstructions(instructions string) error
}

// Config wires a Controller to its collaborators
type Config struct {
	Engine   recognition.Engine
	Language string
	Device   capture.Device

	NewAnalyzer analysis.Factory
	// Credential returns the analysis API key at call time. Nil means the
	// provider needs none.
	Credential func() string
	Model      string
	MaxTokens  int

	Store InstructionStore
}

// Session is a point-in-time copy of the controller's state
type Session struct {
	ID           string
	Stage        Stage
	Capture      Capture
	Text         string
	Instructions string
	Result       string
	Error        string
	DeviceOpen   bool
}

// Controller drives one scan session through its stages. Collaborator calls
// run without the lock held; a second capture, recognition or analysis while
// one is outstanding is rejected by the stage check.
type Controller struct {
	cfg    Config
	id     string
	logger *slog.Logger

	mu           sync.Mutex
	stage        Stage
	generation   uint64
	stream       capture.Stream
	framing      bool
	capture      Capture
	text         string
	instructions string
	result       string
	errMsg       string
}

// New creates an idle Controller. Saved instructions are loaded from the
// store when one is configured.
func New(cfg Config) *Controller {
	if cfg.Language == "" {
		cfg.Language = recognition.DefaultLanguage
	}
	if cfg.Model == "" {
		cfg.Model = analysis.DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = analysis.DefaultMaxTokens
	}

	id := uuid.NewString()
	c := &Controller{
		cfg:    cfg,
		id:     id,
		logger: slog.Default().With("session", id),
	}

	if cfg.Store != nil {
		instructions, err := cfg.Store.LoadInstructions()
		if err != nil {
			c.logger.Warn("Failed to load saved instructions", "error", err)
		} else {
			c.instructions = instructions
		}
	}

	return c
}

// ID returns the session identifier used in logs and traces
func (c *Controller) ID() string {
	return c.id
}

// Stage returns the current stage
func (c *Controller) Stage() Stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stage
}

// View returns the presentation flags for the current stage
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ViewOf(c.stage, c.errMsg)
}

// Snapshot returns a copy of the session state
func (c *Controller) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Session{
		ID:           c.id,
		Stage:        c.stage,
		Capture:      cloneCapture(c.capture),
		Text:         c.text,
		Instructions: c.instructions,
		Result:       c.result,
		Error:        c.errMsg,
		DeviceOpen:   c.stream != nil,
	}
}

// StartCapture opens the camera. The stage moves to Capturing before the
// device is acquired so a second start is refused while the first is pending.
func (c *Controller) StartCapture(ctx context.Context) error {
	c.mu.Lock()
	step, err := Transition(c.stage, ActionStartCapture, c.guards())
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if c.cfg.Device == nil {
		c.errMsg = msgNoCamera
		c.mu.Unlock()
		return fmt.Errorf("%w: no camera configured", ErrDevice)
	}
	c.apply(step)
	gen := c.generation
	c.mu.Unlock()

	stream, err := c.cfg.Device.Open(ctx)

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDevice, err)
		}
		// The session moved on while the camera was starting
		c.release(stream)
		return invalidState("capture was cancelled before the camera started")
	}
	if err != nil {
		c.settle(ActionDeviceFailed)
		c.errMsg = msgCameraError
		c.mu.Unlock()
		c.logger.Error("Failed to open camera", "error", err)
		return fmt.Errorf("%w: %w", ErrDevice, err)
	}
	c.stream = stream
	c.mu.Unlock()

	c.logger.Info("Camera started")
	return nil
}

// CaptureFrame snapshots the current frame into the capture and releases
// the camera, whether or not the snapshot succeeds. The handle stays with
// the session while the snapshot is in flight, so Cancel and NewScan can
// still release it.
func (c *Controller) CaptureFrame(ctx context.Context) error {
	c.mu.Lock()
	step, err := Transition(c.stage, ActionCaptureFrame, c.guards())
	if err != nil {
		c.mu.Unlock()
		return err
	}
	stream := c.stream
	c.framing = true
	gen := c.generation
	c.mu.Unlock()

	frame, err := stream.Frame(ctx)
	if err == nil && frame.Empty() {
		err = errors.New("camera returned an empty frame")
	}

	var released capture.Stream
	defer func() { c.release(released) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != gen {
		// Cancel or NewScan already released the camera
		return invalidState("capture was cancelled")
	}
	c.framing = false
	if err != nil {
		released = c.settle(ActionDeviceFailed)
		c.errMsg = msgCaptureError
		c.logger.Error("Failed to capture frame", "error", err)
		return fmt.Errorf("%w: %w", ErrDevice, err)
	}

	released = c.apply(step)
	c.capture = cloneCapture(frame)
	return nil
}

// Cancel stops the camera without capturing
func (c *Controller) Cancel() error {
	return c.do(ActionCancel)
}

// SelectFile uses an uploaded image as the capture, bypassing the camera
func (c *Controller) SelectFile(img Capture) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	g := c.guards()
	g.HasCapture = !img.Empty()
	step, err := Transition(c.stage, ActionSelectFile, g)
	if err != nil {
		return err
	}
	if !recognition.IsSupported(img.ContentType) {
		c.errMsg = msgNotAnImage
		return invalidState("%q is not an image", img.ContentType)
	}

	c.apply(step)
	c.capture = cloneCapture(img)
	return nil
}

// Retake discards the capture
func (c *Controller) Retake() error {
	return c.do(ActionRetake)
}

// Process starts recognition of the capture. The returned sequence must be
// ranged over: it runs the engine, passes progress events through, settles
// the stage and then yields the terminal event. If the consumer stops early
// the engine is still drained so the stage settles.
func (c *Controller) Process(ctx context.Context) (iter.Seq[recognition.Event], error) {
	c.mu.Lock()
	step, err := Transition(c.stage, ActionProcess, c.guards())
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if c.cfg.Engine == nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: no recognition engine configured", ErrRecognition)
	}
	c.apply(step)
	gen := c.generation
	img := c.capture
	c.mu.Unlock()

	c.logger.Info("Recognizing capture", "content_type", img.ContentType, "size", len(img.Data))

	var started atomic.Bool
	return func(yield func(recognition.Event) bool) {
		if !started.CompareAndSwap(false, true) {
			yield(recognition.Failed(invalidState("recognition has already run")))
			return
		}

		ctx, span := tracer.Start(ctx, "workflow.recognize", trace.WithAttributes(
			attribute.String("session.id", c.id),
			attribute.String("capture.content_type", img.ContentType),
			attribute.Int("capture.size", len(img.Data)),
		))
		defer span.End()

		forward := true
		terminal := recognition.Failed(recognition.ErrNoResult)
		for ev := range c.cfg.Engine.Recognize(ctx, img.Data, img.ContentType, c.cfg.Language) {
			if ev.Done {
				terminal = ev
				break
			}
			if forward && !yield(ev) {
				forward = false
			}
		}

		final := c.finishRecognition(gen, terminal)
		if final.Err != nil {
			span.RecordError(final.Err)
			span.SetStatus(codes.Error, final.Err.Error())
		}
		if forward {
			yield(final)
		}
	}, nil
}

func (c *Controller) finishRecognition(gen uint64, ev recognition.Event) recognition.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != gen {
		return recognition.Failed(invalidState("scan was reset before recognition finished"))
	}
	if ev.Err != nil {
		c.settle(ActionRecognitionFailed)
		c.errMsg = msgRecognitionError
		c.logger.Error("Failed to recognize text", "error", ev.Err)
		return recognition.Failed(fmt.Errorf("%w: %w", ErrRecognition, ev.Err))
	}

	c.settle(ActionRecognitionSucceeded)
	c.text = ev.Text
	c.logger.Info("Recognized text", "chars", len(ev.Text))
	return ev
}

// SetRecognizedText replaces the recognized text with the user's edit
func (c *Controller) SetRecognizedText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stage != ReviewingText {
		return invalidState("text can only be edited while %s", ReviewingText)
	}
	c.text = text
	return nil
}

// SetInstructions replaces the instruction text. Allowed in any stage.
func (c *Controller) SetInstructions(instructions string) {
	c.mu.Lock()
	c.instructions = instructions
	store := c.cfg.Store
	c.mu.Unlock()

	if store == nil {
		return
	}
	if err := store.SaveInstructions(instructions); err != nil {
		c.logger.Warn("Failed to save instructions", "error", err)
	}
}

// Analyze sends the recognized text and instructions to the analysis
// service. The analyzer is built from the credential current at call time
// and closed afterwards.
func (c *Controller) Analyze(ctx context.Context) error {
	c.mu.Lock()
	step, err := Transition(c.stage, ActionAnalyze, c.guards())
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.apply(step)
	gen := c.generation
	text, instructions := c.text, c.instructions
	c.mu.Unlock()

	ctx, span := tracer.Start(ctx, "workflow.analyze", trace.WithAttributes(
		attribute.String("session.id", c.id),
		attribute.String("analysis.model", c.cfg.Model),
	))
	defer span.End()

	result, err := c.analyze(ctx, text, instructions)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != gen {
		return invalidState("scan was reset before analysis finished")
	}
	if err != nil {
		c.settle(ActionAnalysisFailed)
		c.errMsg = "Error: " + strings.TrimPrefix(err.Error(), ErrAnalysis.Error()+": ")
		c.logger.Error("Failed to analyze receipt", "error", err)
		return err
	}

	c.settle(ActionAnalysisSucceeded)
	c.result = result
	return nil
}

func (c *Controller) analyze(ctx context.Context, text, instructions string) (string, error) {
	var credential string
	if c.cfg.Credential != nil {
		credential = c.cfg.Credential()
		if credential == "" {
			return "", ErrMissingCredential
		}
	}
	if c.cfg.NewAnalyzer == nil {
		return "", fmt.Errorf("%w: no analysis provider configured", ErrAnalysis)
	}

	analyzer, err := c.cfg.NewAnalyzer(credential)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAnalysis, err)
	}
	defer func() {
		if err := analyzer.Close(); err != nil {
			c.logger.Warn("Failed to close analyzer", "error", err)
		}
	}()

	result, err := analyzer.Analyze(ctx, analysis.Request{
		Model:     c.cfg.Model,
		System:    analysis.SystemPrompt,
		Prompt:    analysis.BuildPrompt(text, instructions),
		MaxTokens: c.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAnalysis, err)
	}
	return result, nil
}

// Revise returns from the result to the text review so the user can edit
// and analyze again
func (c *Controller) Revise() error {
	return c.do(ActionRevise)
}

// NewScan resets the session to Idle from any stage. The instruction text
// is kept.
func (c *Controller) NewScan() {
	c.mu.Lock()
	step, _ := Transition(c.stage, ActionNewScan, c.guards())
	stream := c.apply(step)
	c.mu.Unlock()

	c.release(stream)
}

// do runs a transition that needs no collaborator call
func (c *Controller) do(action Action) error {
	c.mu.Lock()
	step, err := Transition(c.stage, action, c.guards())
	if err != nil {
		c.mu.Unlock()
		return err
	}
	stream := c.apply(step)
	c.mu.Unlock()

	c.release(stream)
	return nil
}

func (c *Controller) guards() Guards {
	return Guards{
		HasCapture:        !c.capture.Empty(),
		DeviceReady:       c.stream != nil && !c.framing,
		HasText:           strings.TrimSpace(c.text) != "",
		HasInstructions:   strings.TrimSpace(c.instructions) != "",
		InstructionsEmpty: c.instructions == "",
	}
}

// apply commits a step with c.mu held. It returns the stream to release,
// which the caller stops after unlocking.
func (c *Controller) apply(step Step) capture.Stream {
	var stream capture.Stream
	if step.Effects.Has(EffectReleaseDevice) {
		stream, c.stream = c.stream, nil
		c.framing = false
	}
	if step.Effects.Has(EffectDiscardCapture) {
		c.capture = Capture{}
	}
	if step.Effects.Has(EffectClearText) {
		c.text = ""
	}
	if step.Effects.Has(EffectClearResult) {
		c.result = ""
	}
	if step.Effects.Has(EffectSeedInstructions) {
		c.instructions = analysis.DefaultInstructions
	}

	c.stage = step.To
	c.generation++
	c.errMsg = ""
	c.logger.Debug("Stage changed", "from", step.From, "to", step.To)
	return stream
}

// settle applies the outcome of a collaborator call with c.mu held. The
// stage was checked when the call started, so the transition is valid. It
// returns the stream to release, as apply does.
func (c *Controller) settle(action Action) capture.Stream {
	step, err := Transition(c.stage, action, c.guards())
	if err != nil {
		c.logger.Error("Unexpected transition", "action", action, "stage", c.stage, "error", err)
		return nil
	}
	return c.apply(step)
}

func (c *Controller) release(stream capture.Stream) {
	if stream == nil {
		return
	}
	if err := stream.Stop(); err != nil {
		c.logger.Warn("Failed to stop camera stream", "error", err)
	}
}

func cloneCapture(img Capture) Capture {
	if img.Empty() {
		return Capture{}
	}
	return Capture{
		Data:        append([]byte(nil), img.Data...),
		ContentType: img.ContentType,
	}
}
