package logging

import (
	"bytes"
	"strings"
)

// LineWriter is an io.Writer that forwards complete lines to a Logger at
// info priority. It is used to route the captured output of external tools
// into the journal.
type LineWriter struct {
	log *Logger
	buf bytes.Buffer
}

func NewLineWriter(log *Logger) *LineWriter {
	return &LineWriter{log: log}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Partial line; keep it buffered for the next write.
			w.buf.WriteString(line)
			break
		}
		w.emit(line)
	}
	return len(p), nil
}

// Flush logs any buffered partial line. Call after the tool has exited.
func (w *LineWriter) Flush() {
	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}

func (w *LineWriter) emit(line string) {
	line = strings.TrimRight(line, "\r\n")
	if line != "" {
		w.log.Info(line)
	}
}
