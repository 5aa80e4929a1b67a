package smokerlog

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func recvLine(t *testing.T, lines <-chan string) (string, bool) {
	t.Helper()
	select {
	case line, ok := <-lines:
		return line, ok
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for input line")
		return "", false
	}
}

func TestInputReaderOneLinePerPrompt(t *testing.T) {
	var out bytes.Buffer
	r := NewInputReader(strings.NewReader("status\nlog \"added wood\"\n"), &out, "> ")
	r.Start()

	// Nothing is read before the first prompt.
	select {
	case line := <-r.Lines():
		t.Fatalf("got %q before prompting", line)
	case <-time.After(20 * time.Millisecond):
	}

	r.Prompt()
	if line, _ := recvLine(t, r.Lines()); line != "status" {
		t.Errorf("first line = %q", line)
	}
	r.Prompt()
	if line, _ := recvLine(t, r.Lines()); line != `log "added wood"` {
		t.Errorf("second line = %q", line)
	}

	r.Prompt()
	if _, ok := recvLine(t, r.Lines()); ok {
		t.Error("Lines() not closed at end of input")
	}

	deadline := time.Now().Add(2 * time.Second)
	for r.Alive() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if r.Alive() {
		t.Error("worker still alive after end of input")
	}
}
