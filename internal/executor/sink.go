package executor

import (
	"bytes"
	"io"
	"os"
	"sync"
)

// outputSink accumulates streamed output in memory up to maxChars, then
// transparently spills to an owner-only temp file so a runaway child never
// exhausts process memory.
type outputSink struct {
	mu        sync.Mutex
	maxChars  int
	buf       bytes.Buffer
	spoolFile *os.File
	spooling  bool
}

func newOutputSink(maxChars int) *outputSink {
	return &outputSink{maxChars: maxChars}
}

func (s *outputSink) Write(chunk string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.spooling {
		_, err := s.spoolFile.WriteString(chunk)
		return err
	}

	if s.maxChars > 0 && s.buf.Len()+len(chunk) > s.maxChars {
		f, err := os.CreateTemp("", "council-spool-*.txt")
		if err != nil {
			return err
		}
		if err := f.Chmod(0o600); err != nil {
			f.Close()
			return err
		}
		if _, err := f.WriteString(s.buf.String()); err != nil {
			f.Close()
			return err
		}
		s.spoolFile = f
		s.spooling = true
		s.buf.Reset()
		_, err = s.spoolFile.WriteString(chunk)
		return err
	}

	s.buf.WriteString(chunk)
	return nil
}

// Finalize returns the combined output, transparently reading back the
// spool file when one was used, then removes it.
func (s *outputSink) Finalize() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.spooling {
		return s.buf.String(), nil
	}
	if _, err := s.spoolFile.Seek(0, 0); err != nil {
		return "", err
	}
	data, err := io.ReadAll(s.spoolFile)
	name := s.spoolFile.Name()
	s.spoolFile.Close()
	os.Remove(name)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Discard drops any accumulated output and removes the spool file, used on
// the timeout and abort paths where the partial output is never returned.
func (s *outputSink) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.spoolFile != nil {
		name := s.spoolFile.Name()
		s.spoolFile.Close()
		os.Remove(name)
	}
}
