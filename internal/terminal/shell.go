package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/zombor/receipt-scanner/internal/recognition"
	"github.com/zombor/receipt-scanner/internal/workflow"
)

// Controller is the scan workflow the shell drives
type Controller interface {
	StartCapture(ctx context.Context) error
	CaptureFrame(ctx context.Context) error
	Cancel() error
	SelectFile(img workflow.Capture) error
	Retake() error
	Process(ctx context.Context) (iter.Seq[recognition.Event], error)
	SetRecognizedText(text string) error
	SetInstructions(instructions string)
	Analyze(ctx context.Context) error
	Revise() error
	NewScan()
	View() workflow.View
	Snapshot() workflow.Session
}

const helpText = `Commands:
  camera          start the camera
  capture         take a photo and stop the camera
  cancel          stop the camera without a photo
  open <path>     use an image or PDF file instead of the camera
  retake          discard the image
  process         extract text from the image
  text            print the extracted text
  edit <text>     replace the extracted text
  prompt [text]   print or set the instructions
  analyze         send the text and instructions for analysis
  revise          go back from the result to edit text or instructions
  new             start a new scan (instructions are kept)
  status          show the current stage
  quit            exit
`

// Shell renders the workflow in a terminal and turns typed commands into
// controller actions
type Shell struct {
	ctl      Controller
	in       io.Reader
	out      io.Writer
	readFile func(name string) ([]byte, error)
}

// NewShell creates a Shell reading files from disk
func NewShell(ctl Controller, in io.Reader, out io.Writer) *Shell {
	return NewShellWithDeps(ctl, in, out, os.ReadFile)
}

// NewShellWithDeps creates a Shell with a custom file reader for testing
func NewShellWithDeps(ctl Controller, in io.Reader, out io.Writer, readFile func(string) ([]byte, error)) *Shell {
	return &Shell{
		ctl:      ctl,
		in:       in,
		out:      out,
		readFile: readFile,
	}
}

// Run reads commands until quit, EOF or ctx is done. Command failures are
// printed and the loop continues.
func (s *Shell) Run(ctx context.Context) error {
	fmt.Fprint(s.out, "Receipt Scanner. Type 'help' for commands.\n")

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(s.in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		fmt.Fprintf(s.out, "%s> ", s.ctl.View().Stage)

		var line string
		select {
		case <-ctx.Done():
			s.ctl.NewScan()
			fmt.Fprintln(s.out)
			return nil
		case l, ok := <-lines:
			if !ok {
				s.ctl.NewScan()
				fmt.Fprintln(s.out)
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("reading input: %w", err)
					}
				default:
				}
				return nil
			}
			line = l
		}

		quit, err := s.Execute(ctx, line)
		if err != nil {
			s.printError(err)
		}
		if quit {
			s.ctl.NewScan()
			return nil
		}
	}
}

// Execute runs one command line. It reports whether the shell should exit.
func (s *Shell) Execute(ctx context.Context, line string) (bool, error) {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(cmd) {
	case "":
		return false, nil
	case "help", "?":
		fmt.Fprint(s.out, helpText)
	case "camera":
		if err := s.ctl.StartCapture(ctx); err != nil {
			return false, err
		}
		fmt.Fprintln(s.out, "Camera started. Type 'capture' to take a photo or 'cancel' to stop.")
	case "capture":
		if err := s.ctl.CaptureFrame(ctx); err != nil {
			return false, err
		}
		s.printCapture()
	case "cancel":
		if err := s.ctl.Cancel(); err != nil {
			return false, err
		}
		fmt.Fprintln(s.out, "Camera stopped.")
	case "open":
		if err := s.open(arg); err != nil {
			return false, err
		}
		s.printCapture()
	case "retake":
		if err := s.ctl.Retake(); err != nil {
			return false, err
		}
		fmt.Fprintln(s.out, "Image discarded.")
	case "process":
		if err := s.process(ctx); err != nil {
			return false, err
		}
		s.printText()
	case "text":
		s.printText()
	case "edit":
		if err := s.ctl.SetRecognizedText(arg); err != nil {
			return false, err
		}
		fmt.Fprintln(s.out, "Text updated.")
	case "prompt":
		if arg == "" {
			fmt.Fprintf(s.out, "Instructions: %s\n", s.ctl.Snapshot().Instructions)
			return false, nil
		}
		s.ctl.SetInstructions(arg)
		fmt.Fprintln(s.out, "Instructions updated.")
	case "analyze":
		if err := s.analyze(ctx); err != nil {
			return false, err
		}
		s.printResult()
	case "revise":
		if err := s.ctl.Revise(); err != nil {
			return false, err
		}
		fmt.Fprintln(s.out, "Edit the text or instructions, then analyze again.")
	case "new":
		s.ctl.NewScan()
		fmt.Fprintln(s.out, "Ready for a new scan.")
	case "status":
		s.printStatus()
	case "quit", "exit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q (type 'help' for commands)", cmd)
	}
	return false, nil
}

// Batch runs a whole scan of one file without prompting: recognition, then
// analysis with the given instructions (or the remembered ones). It returns
// the analysis result.
func (s *Shell) Batch(ctx context.Context, path, instructions string) (string, error) {
	if err := s.open(path); err != nil {
		return "", err
	}
	if err := s.process(ctx); err != nil {
		return "", err
	}
	if instructions != "" {
		s.ctl.SetInstructions(instructions)
	}
	if err := s.ctl.Analyze(ctx); err != nil {
		return "", err
	}
	return s.ctl.Snapshot().Result, nil
}

func (s *Shell) open(path string) error {
	if path == "" {
		return errors.New("open needs a file path")
	}
	data, err := s.readFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return s.ctl.SelectFile(workflow.Capture{
		Data:        data,
		ContentType: detectContentType(path, data),
	})
}

// process runs recognition, printing progress as it arrives
func (s *Shell) process(ctx context.Context) error {
	seq, err := s.ctl.Process(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(s.out, "Extracting text...")
	for ev := range seq {
		if ev.Done {
			if ev.Err != nil {
				return ev.Err
			}
			continue
		}
		if ev.Status == recognition.StatusRecognizing {
			fmt.Fprintf(s.out, "OCR Progress: %.1f%%\n", ev.Progress*100)
		}
	}
	return nil
}

func (s *Shell) analyze(ctx context.Context) error {
	// A shown result goes back to review before analyzing again
	if s.ctl.View().Stage == workflow.ShowingResult {
		if err := s.ctl.Revise(); err != nil {
			return err
		}
	}
	fmt.Fprintln(s.out, "Analyzing...")
	return s.ctl.Analyze(ctx)
}

func (s *Shell) printCapture() {
	img := s.ctl.Snapshot().Capture
	fmt.Fprintf(s.out, "Image ready (%s, %d bytes). Type 'process' to extract text or 'retake'.\n", img.ContentType, len(img.Data))
}

func (s *Shell) printText() {
	text := s.ctl.Snapshot().Text
	if text == "" {
		fmt.Fprintln(s.out, "No text extracted yet.")
		return
	}
	fmt.Fprintf(s.out, "--- Extracted Text ---\n%s\n----------------------\n", strings.TrimRight(text, "\n"))
}

func (s *Shell) printResult() {
	fmt.Fprintf(s.out, "--- Analysis ---\n%s\n----------------\n", s.ctl.Snapshot().Result)
}

func (s *Shell) printStatus() {
	v := s.ctl.View()
	fmt.Fprintf(s.out, "Stage: %s\n", v.Stage)

	var panels []string
	for _, p := range []struct {
		on   bool
		name string
	}{
		{v.ShowCamera, "camera"},
		{v.ShowPreview, "preview"},
		{v.ShowOCR, "text"},
		{v.ShowPrompt, "instructions"},
		{v.ShowResult, "result"},
	} {
		if p.on {
			panels = append(panels, p.name)
		}
	}
	if len(panels) > 0 {
		fmt.Fprintf(s.out, "Showing: %s\n", strings.Join(panels, ", "))
	}
	if v.OCRLoading {
		fmt.Fprintln(s.out, "Working: recognizing text")
	}
	if v.AILoading {
		fmt.Fprintln(s.out, "Working: analyzing receipt")
	}
	if v.Error != "" {
		fmt.Fprintf(s.out, "Last error: %s\n", v.Error)
	}
}

// printError prefers the workflow's user-facing message over the raw error.
// Rejected actions leave the last message in place, so they print the error.
func (s *Shell) printError(err error) {
	if msg := s.ctl.View().Error; msg != "" && !errors.Is(err, workflow.ErrInvalidState) {
		fmt.Fprintln(s.out, msg)
		return
	}
	fmt.Fprintf(s.out, "Error: %v\n", err)
}

// detectContentType guesses a file's type from its extension, falling back
// to sniffing the bytes
func detectContentType(path string, data []byte) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return http.DetectContentType(data)
	}
}
