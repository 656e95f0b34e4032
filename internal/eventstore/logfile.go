package eventstore

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const rotateStampFormat = "20060102_150405"

// ErrClosed is returned by writes after the store was closed.
var ErrClosed = errors.New("eventstore: closed")

// logFile is an append-only newline delimited file that is renamed aside
// once it grows past maxSize. It is not safe for concurrent use; owners
// serialize calls with their own mutex.
type logFile struct {
	path    string
	maxSize int64
	now     func() time.Time
	f       *os.File
	size    int64
	closed  bool
}

func openLogFile(path string, maxSize int64, now func() time.Time) (*logFile, error) {
	l := logFile{
		path:    path,
		maxSize: maxSize,
		now:     now,
	}
	if err := l.open(); err != nil {
		return nil, err
	}
	return &l, nil
}

func (l *logFile) open() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	l.f = f
	l.size = st.Size()
	return nil
}

// append writes line followed by a newline, rotating first when the file
// already exceeds maxSize.
func (l *logFile) append(line []byte) error {
	if l.closed {
		return ErrClosed
	}
	if l.f == nil {
		if err := l.open(); err != nil {
			return err
		}
	}
	if l.maxSize > 0 && l.size > l.maxSize {
		if err := l.rotate(); err != nil {
			return fmt.Errorf("rotate %s: %w", l.path, err)
		}
	}
	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')
	n, err := l.f.Write(buf)
	l.size += int64(n)
	return err
}

func (l *logFile) rotate() error {
	target, err := l.rotatedName()
	if err != nil {
		return err
	}
	if err := l.f.Close(); err != nil {
		return err
	}
	l.f = nil
	if err := os.Rename(l.path, target); err != nil {
		// keep appending to the current file
		if oerr := l.open(); oerr != nil {
			return errors.Join(err, oerr)
		}
		return err
	}
	return l.open()
}

// rotatedName turns events.jsonl into events.20060102_150405.jsonl, adding
// a counter when a file with that name already exists.
func (l *logFile) rotatedName() (string, error) {
	ext := filepath.Ext(l.path)
	base := strings.TrimSuffix(l.path, ext)
	stamp := l.now().UTC().Format(rotateStampFormat)
	name := fmt.Sprintf("%s.%s%s", base, stamp, ext)
	for i := 1; ; i++ {
		_, err := os.Stat(name)
		if errors.Is(err, fs.ErrNotExist) {
			return name, nil
		}
		if err != nil {
			return "", err
		}
		name = fmt.Sprintf("%s.%s.%d%s", base, stamp, i, ext)
	}
}

func (l *logFile) close() error {
	l.closed = true
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

// readTail returns the last n non empty lines of the file at path, oldest
// first. A missing file yields no lines.
func readTail(path string, n int) ([][]byte, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if n <= 0 {
		return nil, nil
	}
	tail := make([][]byte, n)
	var count int
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		tail[count%n] = append(tail[count%n][:0], line...)
		count++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if count <= n {
		return tail[:count], nil
	}
	start := count % n
	ans := make([][]byte, 0, n)
	ans = append(ans, tail[start:]...)
	ans = append(ans, tail[:start]...)
	return ans, nil
}
