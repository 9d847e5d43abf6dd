package transport

import "bytes"

// MaxLineSize bounds a buffered partial line.
const MaxLineSize = 64 * 1024

// LineSplitter reassembles newline-terminated lines from arbitrary reads.
// It is not safe for concurrent use.
type LineSplitter struct {
	buf       []byte
	overflows uint64
}

// Feed appends p and calls fn for every complete, non-empty line, without its
// terminator. The line slice is only valid during the call.
func (s *LineSplitter) Feed(p []byte, fn func(line []byte)) {
	s.buf = append(s.buf, p...)
	start := 0
	for {
		i := bytes.IndexByte(s.buf[start:], '\n')
		if i < 0 {
			break
		}
		emit(s.buf[start:start+i], fn)
		start += i + 1
	}
	n := copy(s.buf, s.buf[start:])
	s.buf = s.buf[:n]
	if len(s.buf) > MaxLineSize {
		s.overflows++
		s.buf = s.buf[:0]
	}
}

// Flush emits whatever is buffered as a final line.
func (s *LineSplitter) Flush(fn func(line []byte)) {
	if len(s.buf) > 0 {
		emit(s.buf, fn)
	}
	s.buf = s.buf[:0]
}

// Overflows counts partial lines discarded for exceeding MaxLineSize.
func (s *LineSplitter) Overflows() uint64 { return s.overflows }

func emit(line []byte, fn func([]byte)) {
	line = bytes.TrimRight(line, "\r")
	if len(bytes.TrimSpace(line)) == 0 {
		return
	}
	fn(line)
}
