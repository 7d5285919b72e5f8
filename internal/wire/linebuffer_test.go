package wire

import (
	"reflect"
	"testing"
)

func TestFeedCompleteLines(t *testing.T) {
	var buf LineBuffer

	lines := buf.Feed([]byte("one\ntwo\n"))
	want := []string{"one", "two"}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("Feed() = %v, want %v", lines, want)
	}
	if _, ok := buf.Flush(); ok {
		t.Error("Flush() reported leftover data")
	}
}

func TestFeedCarriesPartialLine(t *testing.T) {
	var buf LineBuffer

	if lines := buf.Feed([]byte("data: {\"par")); len(lines) != 0 {
		t.Fatalf("partial chunk produced lines: %v", lines)
	}

	lines := buf.Feed([]byte("tial\":true}\n"))
	want := []string{`data: {"partial":true}`}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("Feed() = %v, want %v", lines, want)
	}
}

func TestFeedStripsCarriageReturn(t *testing.T) {
	var buf LineBuffer

	lines := buf.Feed([]byte("alpha\r\nbeta\r\n"))
	want := []string{"alpha", "beta"}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("Feed() = %v, want %v", lines, want)
	}
}

func TestFlushReturnsUnterminatedTail(t *testing.T) {
	var buf LineBuffer

	buf.Feed([]byte("no newline here"))
	line, ok := buf.Flush()
	if !ok || line != "no newline here" {
		t.Errorf("Flush() = %q, %v", line, ok)
	}

	// A second flush is empty.
	if _, ok := buf.Flush(); ok {
		t.Error("second Flush() reported data")
	}
}

// Splitting the same stream at every possible byte boundary must yield
// the same logical lines.
func TestChunkBoundaryInvariance(t *testing.T) {
	stream := "data: {\"a\":1}\r\ndata: {\"b\":2}\n\ndata: [DONE]\n"

	collect := func(chunks [][]byte) []string {
		var buf LineBuffer
		var lines []string
		for _, chunk := range chunks {
			lines = append(lines, buf.Feed(chunk)...)
		}
		if tail, ok := buf.Flush(); ok {
			lines = append(lines, tail)
		}
		return lines
	}

	reference := collect([][]byte{[]byte(stream)})

	for split := 1; split < len(stream); split++ {
		got := collect([][]byte{[]byte(stream[:split]), []byte(stream[split:])})
		if !reflect.DeepEqual(got, reference) {
			t.Fatalf("split at %d: lines %v, want %v", split, got, reference)
		}
	}

	// Byte-at-a-time delivery.
	var single [][]byte
	for i := 0; i < len(stream); i++ {
		single = append(single, []byte{stream[i]})
	}
	if got := collect(single); !reflect.DeepEqual(got, reference) {
		t.Fatalf("byte-at-a-time: lines %v, want %v", got, reference)
	}
}
