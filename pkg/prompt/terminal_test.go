package prompt

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	fcolor "github.com/fatih/color"
	"github.com/rs/zerolog"
)

func newTestTerminal(in io.Reader, interactive bool) (*Terminal, *bytes.Buffer) {
	fcolor.NoColor = true
	var out bytes.Buffer
	return NewTerminal(Config{
		In:          in,
		Out:         &out,
		Interactive: &interactive,
		Logger:      zerolog.Nop(),
	}), &out
}

func TestTerminal_Answers(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"Y\n", true},
		{"  y  \n", true},
		{"y", true},
		{"yes\n", false},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			term, out := newTestTerminal(strings.NewReader(tt.input), true)
			if got := term.Ask(context.Background(), "gaming", "step failed"); got != tt.want {
				t.Errorf("Ask(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if !strings.Contains(out.String(), Question) {
				t.Errorf("question not shown: %q", out.String())
			}
		})
	}
}

func TestTerminal_ReadsOneLinePerQuestion(t *testing.T) {
	term, _ := newTestTerminal(strings.NewReader("y\nn\ny\n"), true)
	ctx := context.Background()

	var got []bool
	for i := 0; i < 4; i++ {
		got = append(got, term.Ask(ctx, "stage", "reason"))
	}
	want := []bool{true, false, true, false}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("answers = %v, want %v", got, want)
		}
	}
}

func TestTerminal_NotInteractive(t *testing.T) {
	term, out := newTestTerminal(strings.NewReader("y\n"), false)
	if term.Ask(context.Background(), "gaming", "step failed") {
		t.Error("continued without a terminal")
	}
	if !strings.HasSuffix(out.String(), "n\n") {
		t.Errorf("output = %q, want refusal echoed", out.String())
	}
}

func TestTerminal_Cancelled(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	term, _ := newTestTerminal(r, true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if term.Ask(ctx, "gaming", "step failed") {
		t.Error("continued after cancellation")
	}
}

func TestTerminal_AnswerAfterCancelledQuestion(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	term, _ := newTestTerminal(r, true)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if term.Ask(ctx, "gaming", "step failed") {
		t.Fatal("continued after timeout")
	}

	go func() { _, _ = io.WriteString(w, "y\n") }()

	done := make(chan bool, 1)
	go func() { done <- term.Ask(context.Background(), "developer", "step failed") }()

	select {
	case got := <-done:
		if !got {
			t.Error("second question did not receive the answer")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second question never received the answer")
	}
}

func TestIsTerminalReader(t *testing.T) {
	if isTerminalReader(strings.NewReader("")) {
		t.Error("strings.Reader reported as terminal")
	}
}
