package output

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestProgressBar_NonTTYEmitsOnlyCompletion(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewProgress("Scanning packages")
	p.SetWriter(buf)

	p.Update(1, 4)
	p.Update(2, 4)
	if buf.Len() != 0 {
		t.Errorf("non-TTY progress must stay quiet until done, got %q", buf.String())
	}

	p.Update(4, 4)
	out := buf.String()
	if !strings.Contains(out, "100%") || !strings.Contains(out, "4/4") || !strings.Contains(out, "Scanning packages") {
		t.Errorf("unexpected completion line %q", out)
	}

	// Already complete: Finish must not print a second line.
	p.Finish()
	if strings.Count(buf.String(), "\n") != 1 {
		t.Errorf("expected exactly one line, got %q", buf.String())
	}
}

func TestProgressBar_FinishCompletes(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewProgress("Scanning packages")
	p.SetWriter(buf)

	p.Update(3, 10)
	p.Finish()

	if !strings.Contains(buf.String(), "10/10") {
		t.Errorf("Finish() should render the full bar, got %q", buf.String())
	}
}

func TestProgressBar_RenderComplete(t *testing.T) {
	full := "[" + strings.Repeat("=", 29) + ">]"
	for _, total := range []int{0, 30} {
		buf := &bytes.Buffer{}
		p := NewProgress("x")
		p.SetWriter(buf)
		p.Update(total, total)

		out := buf.String()
		if !strings.Contains(out, full) || !strings.Contains(out, "100%") {
			t.Errorf("Update(%d, %d) rendered %q, want full bar", total, total, out)
		}
	}
}

func TestProgressBar_Concurrent(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewProgress("Concurrent")
	p.SetWriter(buf)

	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			p.Update(n, 100)
		}(i)
	}
	wg.Wait()
	p.Finish()

	if !strings.Contains(buf.String(), "100/100") {
		t.Errorf("expected completion after concurrent updates, got %q", buf.String())
	}
}

func TestSpinner_NonTTYPrintsOnce(t *testing.T) {
	buf := &bytes.Buffer{}
	s := NewSpinner("Waiting for device")
	s.SetWriter(buf)

	s.Start()
	time.Sleep(150 * time.Millisecond)
	s.StopWithMessage("✓ Device ready")

	out := buf.String()
	if out != "Waiting for device...\n✓ Device ready\n" {
		t.Errorf("unexpected spinner output %q", out)
	}
}

func TestSpinner_MultipleStops(t *testing.T) {
	s := NewSpinner("Test")
	s.SetWriter(&bytes.Buffer{})
	s.Start()

	// Multiple stops should not panic
	s.Stop()
	s.Stop()
}

func TestSpinner_TimeoutMessage(t *testing.T) {
	s := NewSpinner("Setting mode").WithTimeout(10 * time.Second)
	s.startTime = time.Now()

	if got := s.formatMessage(); !strings.HasPrefix(got, "Setting mode (") || !strings.HasSuffix(got, "s remaining)") {
		t.Errorf("formatMessage() = %q", got)
	}

	s.startTime = time.Now().Add(-time.Minute)
	if got := s.formatMessage(); got != "Setting mode (0s remaining)" {
		t.Errorf("expired timeout should clamp to 0, got %q", got)
	}
}
