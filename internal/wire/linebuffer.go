// Package wire provides chunk-tolerant plumbing shared by the streaming
// protocol adapters: line reassembly across arbitrary chunk boundaries
// and incremental tool-call assembly.
package wire

import "strings"

// LineBuffer reassembles logical lines from a stream of byte chunks that
// do not align with line boundaries. A chunk may contain zero, one or
// several complete lines and may end mid-line; the unterminated tail is
// carried over and prepended to the next chunk. Splitting the buffer per
// chunk without this carry-over silently drops partial trailing lines.
type LineBuffer struct {
	pending strings.Builder
}

// Feed consumes one chunk and returns the complete lines it finished,
// without trailing line breaks.
func (b *LineBuffer) Feed(chunk []byte) []string {
	var lines []string
	start := 0
	for i, c := range chunk {
		if c != '\n' {
			continue
		}
		b.pending.Write(chunk[start:i])
		lines = append(lines, strings.TrimSuffix(b.pending.String(), "\r"))
		b.pending.Reset()
		start = i + 1
	}
	b.pending.Write(chunk[start:])
	return lines
}

// Flush returns the buffered partial line, if any, once the transport
// closes. A final line without a terminator is still a logical line.
func (b *LineBuffer) Flush() (string, bool) {
	if b.pending.Len() == 0 {
		return "", false
	}
	line := strings.TrimSuffix(b.pending.String(), "\r")
	b.pending.Reset()
	return line, true
}
