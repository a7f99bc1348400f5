package gemini

import (
	"bytes"
	"encoding/json"
)

// lineBuffer reassembles stream units that may be split across transport
// reads. A unit is complete only at a newline; an optional "data:" prefix
// is stripped and lines that are not valid JSON are dropped.
type lineBuffer struct {
	pending []byte
}

// Write appends p and returns the texts of every unit completed by it, in order.
func (b *lineBuffer) Write(p []byte) []string {
	b.pending = append(b.pending, p...)
	var out []string
	for {
		i := bytes.IndexByte(b.pending, '\n')
		if i < 0 {
			return out
		}
		out = append(out, parseLine(b.pending[:i])...)
		b.pending = b.pending[i+1:]
	}
}

// Flush parses whatever remains after the stream ends. A final unit without
// a trailing newline is still complete at EOF.
func (b *lineBuffer) Flush() []string {
	rest := b.pending
	b.pending = nil
	return parseLine(rest)
}

func parseLine(line []byte) []string {
	line = bytes.TrimSpace(line)
	line = bytes.TrimPrefix(line, []byte("data:"))
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] != '{' {
		return nil
	}

	var resp streamResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil
	}
	var texts []string
	for _, c := range resp.Candidates {
		for _, part := range c.Content.Parts {
			if part.Text != "" {
				texts = append(texts, part.Text)
			}
		}
	}
	return texts
}
