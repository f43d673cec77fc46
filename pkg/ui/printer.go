package ui

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/forgearch/forge/pkg/engine"
)

const (
	boxWidth  = 63
	ruleWidth = 50
)

// Printer writes operator-facing output. It implements engine.Reporter and
// is safe for concurrent use.
type Printer struct {
	mu sync.Mutex
	w  io.Writer
}

var _ engine.Reporter = (*Printer)(nil)

// NewPrinter returns a Printer writing to w, or to stdout when w is nil.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{w: w}
}

// Writer returns the underlying writer.
func (p *Printer) Writer() io.Writer {
	return p.w
}

func (p *Printer) println(lines ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, line := range lines {
		if _, err := fmt.Fprintln(p.w, line); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "ui: failed to print message: %v\n", err)
			return
		}
	}
}

// Banner prints the welcome banner.
func (p *Printer) Banner() {
	frame := func(content string) string {
		return Decorate(StyleFrame, "║") + content + Decorate(StyleFrame, "║")
	}
	blank := frame(strings.Repeat(" ", boxWidth))
	letters := make([]string, 0, 5)
	for _, l := range []string{"F", "O", "R", "G", "E"} {
		letters = append(letters, Decorate(StyleError, Decorate(StyleBold, l))+Decorate(StyleDim, "."))
	}

	p.println(
		"",
		Decorate(StyleFrame, "╔"+strings.Repeat("═", boxWidth)+"╗"),
		blank,
		frame(pad("     🜂  "+strings.Join(letters, ""), 13)),
		blank,
		frame(pad("     "+Decorate(StyleBold, "F")+"ramework "+Decorate(StyleDim, "for")+" "+
			Decorate(StyleBold, "O")+"rganized "+Decorate(StyleDim, "and")+" "+
			Decorate(StyleBold, "R")+"eproducible", 45)),
		frame(pad("     "+Decorate(StyleBold, "G")+"it-tracked "+Decorate(StyleBold, "E")+"nvironments", 28)),
		blank,
		frame(pad("     🦁 "+Decorate(StyleLion, "Gaming")+"  │  🐍 "+Decorate(StyleSerpent, "Developer")+
			"  │  🐐 "+Decorate(StyleGoat, "Aesthetic"), 47)),
		blank,
		frame(pad("     "+Decorate(StyleDim, `"Where Chimeras are forged"`), 32)),
		blank,
		Decorate(StyleFrame, "╚"+strings.Repeat("═", boxWidth)+"╝"),
		"",
	)
}

// pad right-pads s to the box width given the number of visible cells it
// already occupies.
func pad(s string, visible int) string {
	if visible >= boxWidth {
		return s
	}
	return s + strings.Repeat(" ", boxWidth-visible)
}

// DryRunNotice announces that the run is a dry run.
func (p *Printer) DryRunNotice() {
	p.println(Decorate(StyleWarning, "🔍 DRY RUN MODE — No changes will be made"), "")
}

// ProfileLoading implements engine.Reporter.
func (p *Printer) ProfileLoading(name string) {
	p.println("", Decorate(StyleInfo, "📋 Loading Profile: "+name))
}

// StageStarted implements engine.Reporter.
func (p *Printer) StageStarted(kind engine.StageKind, name string) {
	var header string
	switch kind {
	case engine.StageKindBootstrap:
		header = Decorate(StyleBold, "🜂 F.O.R.G.E. Bootstrap — Base System")
	case engine.StageKindPackages:
		header = Decorate(StyleBold, "📦 Installing Trait Packages")
	default:
		b := BrandFor(name)
		header = Decorate(StyleBold, b.Symbol+" Forging ") + Decorate(b.Style, b.Name) + " " +
			Decorate(StyleBold, fmt.Sprintf("Pillar (%s)", name))
	}
	p.println("", header, strings.Repeat("=", ruleWidth))
}

// StepMissing implements engine.Reporter.
func (p *Printer) StepMissing(step engine.Step) {
	p.println(Decorate(StyleWarning, "⚠️  Script not found: "+path.Base(step.Path)))
}

// StageFailed implements engine.Reporter.
func (p *Printer) StageFailed(result *engine.StageResult) {
	var msg string
	var ee *engine.EngineError
	switch {
	case errors.Is(result.Err, engine.ErrPillarMissing):
		msg = "❌ Pillar not found: " + result.Name
	case errors.As(result.Err, &ee) && ee.Code == engine.ErrCodeStepMissing:
		msg = "❌ Script not found: " + ee.Step
	case result.Status == engine.StageAborted:
		msg = fmt.Sprintf("❌ %s aborted", stageLabel(result))
	default:
		msg = fmt.Sprintf("❌ %s failed", stageLabel(result))
	}
	p.println(Decorate(StyleError, msg))
}

func stageLabel(result *engine.StageResult) string {
	switch result.Kind {
	case engine.StageKindBootstrap:
		return "Bootstrap"
	case engine.StageKindPackages:
		return "Trait packages"
	default:
		return fmt.Sprintf("Pillar %s", result.Name)
	}
}

// Warning implements engine.Reporter.
func (p *Printer) Warning(msg string) {
	p.println(Decorate(StyleWarning, "⚠️  "+msg))
}

// StepStarted prints the line shown before a step runs.
func (p *Printer) StepStarted(label string) {
	p.println(Decorate(StyleInfo, "🔧 Forging: "+label))
}

// StepSucceeded prints the line shown after a step succeeds.
func (p *Printer) StepSucceeded(label string) {
	p.println(Decorate(StyleSuccess, "✅ "+label+" complete"))
}

// StepFailed prints the line shown after a step fails.
func (p *Printer) StepFailed(label string) {
	p.println(Decorate(StyleError, "❌ "+label+" failed"))
}

// StepSkipped prints the line shown for a step that is not run in dry-run
// mode.
func (p *Printer) StepSkipped(label string) {
	p.println(Decorate(StyleDim, "⏭️  "+label+" skipped (dry run)"))
}

// Completion implements engine.Reporter.
func (p *Printer) Completion() {
	line := func(content string, visible int) string {
		return Decorate(StyleSuccess, "║") + pad(content, visible) + Decorate(StyleSuccess, "║")
	}
	blank := line("", 0)
	p.println(
		"",
		Decorate(StyleSuccess, "╔"+strings.Repeat("═", boxWidth)+"╗"),
		blank,
		line("     🜂  "+Decorate(StyleSuccess, Decorate(StyleBold, "Chimera Forged Successfully!")), 37),
		blank,
		line(Decorate(StyleSuccess, "     Your Arch system has been transformed."), 44),
		blank,
		line(Decorate(StyleSuccess, "     🦁 Gaming  │  🐍 Developer  │  🐐 Aesthetic"), 47),
		blank,
		Decorate(StyleSuccess, "╚"+strings.Repeat("═", boxWidth)+"╝"),
		"",
	)
}

// Heading prints a bold heading.
func (p *Printer) Heading(text string) {
	p.println("", Decorate(StyleBold, text))
}

// Success prints a success line.
func (p *Printer) Success(msg string) {
	p.println(Decorate(StyleSuccess, "✅ "+msg))
}

// Error prints an error line.
func (p *Printer) Error(msg string) {
	p.println(Decorate(StyleError, "❌ "+msg))
}

// Line prints text as is.
func (p *Printer) Line(text string) {
	p.println(text)
}
