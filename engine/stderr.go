package engine

import (
	"bytes"
	"strings"
)

// maxPartialLine caps an unterminated line, only its tail is kept.
const maxPartialLine = 4 << 10

// lastLines is an io.Writer that keeps only the last n lines written to it.
// Tool stderr can be large; only its tail is useful in logs and errors.
type lastLines struct {
	partial bytes.Buffer
	lines   []string
	next    int
	full    bool
}

func newLastLines(n int) *lastLines {
	if n < 1 {
		n = 1
	}
	return &lastLines{lines: make([]string, n)}
}

func (l *lastLines) Write(p []byte) (int, error) {
	l.partial.Write(p)
	b := l.partial.Bytes()

	pos := 0
	for {
		i := bytes.IndexByte(b[pos:], '\n')
		if i < 0 {
			break
		}
		l.add(string(b[pos : pos+i+1]))
		pos += i + 1
	}

	rest := b[pos:]
	if len(rest) > maxPartialLine {
		rest = rest[len(rest)-maxPartialLine:]
	}
	rest = append([]byte(nil), rest...)
	l.partial.Reset()
	l.partial.Write(rest)

	return len(p), nil
}

// Close keeps a trailing unterminated line.
func (l *lastLines) Close() error {
	if l.partial.Len() > 0 {
		l.add(l.partial.String())
		l.partial.Reset()
	}
	return nil
}

func (l *lastLines) add(line string) {
	l.lines[l.next] = line
	l.next = (l.next + 1) % len(l.lines)
	if l.next == 0 {
		l.full = true
	}
}

func (l *lastLines) String() string {
	var sb strings.Builder
	if l.full {
		for _, s := range l.lines[l.next:] {
			sb.WriteString(s)
		}
	}
	for _, s := range l.lines[:l.next] {
		sb.WriteString(s)
	}
	return sb.String()
}
