package listener

import (
	"bytes"
	"io"
)

// lineStream adapts a network channel to the console's line
// discipline: reads are normalized to bare \n regardless of what the
// client sends, writes go out with \r\n so telnet and raw ssh clients
// render the tables and prompts correctly.
type lineStream struct {
	rw io.ReadWriter
}

func consoleLineStream(rw io.ReadWriter) io.ReadWriter {
	return &lineStream{rw: rw}
}

func (s *lineStream) Read(p []byte) (int, error) {
	n, err := s.rw.Read(p)
	if n > 0 {
		// Telnet clients send \r\n, ssh clients without a pty send
		// \r alone.
		data := bytes.ReplaceAll(p[:n], []byte("\r\n"), []byte("\n"))
		data = bytes.ReplaceAll(data, []byte("\r"), []byte("\n"))
		n = copy(p, data)
	}
	return n, err
}

func (s *lineStream) Write(p []byte) (int, error) {
	_, err := s.rw.Write(bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n")))
	// Report the caller's length; the expansion is invisible to it.
	return len(p), err
}
