package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LogRotator wraps a log file and keeps it at roughly maxLines lines.
// Once twice the limit has been written, the file is rewritten with only
// the most recent maxLines lines.
type LogRotator struct {
	writer   io.Writer
	window   *lineWindow
	filePath string
	mu       sync.Mutex
}

// NewLogRotator creates a new LogRotator.
func NewLogRotator(writer io.Writer, maxLines int, filePath string) *LogRotator {
	if maxLines <= 0 {
		maxLines = 1
	}

	return &LogRotator{
		writer:   writer,
		window:   newLineWindow(maxLines),
		filePath: filePath,
	}
}

// Write implements io.Writer.
func (w *LogRotator) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err := w.writer.Write(p)
	if err != nil {
		return n, err
	}

	for line := range strings.SplitSeq(strings.TrimRight(string(p), "\n"), "\n") {
		if line == "" {
			continue
		}

		w.window.push(line)

		if w.window.written >= w.window.capacity()*2 {
			if err := w.rewrite(); err != nil {
				return n, fmt.Errorf("failed to rotate log file: %w", err)
			}

			w.window.written = w.window.size
		}
	}

	return n, nil
}

// rewrite replaces the log file with the lines currently held in the window.
func (w *LogRotator) rewrite() error {
	lines := w.window.lines()
	if len(lines) == 0 {
		return nil
	}

	temp, err := os.CreateTemp(filepath.Dir(w.filePath), "temp-log-")
	if err != nil {
		return err
	}

	tempPath := temp.Name()

	if _, err := temp.WriteString(strings.Join(lines, "\n") + "\n"); err != nil {
		temp.Close()
		os.Remove(tempPath)

		return err
	}

	if err := temp.Close(); err != nil {
		os.Remove(tempPath)
		return err
	}

	if closer, ok := w.writer.(io.Closer); ok {
		closer.Close()
	}

	// Windows refuses to rename over an existing file
	os.Remove(w.filePath)

	if err := os.Rename(tempPath, w.filePath); err != nil {
		return err
	}

	file, err := os.OpenFile(w.filePath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	w.writer = file

	return nil
}

// lineWindow is a fixed-size circular buffer of the most recent log lines.
type lineWindow struct {
	buf     []string
	next    int
	size    int
	written int
}

func newLineWindow(capacity int) *lineWindow {
	return &lineWindow{buf: make([]string, capacity)}
}

func (lw *lineWindow) capacity() int {
	return len(lw.buf)
}

func (lw *lineWindow) push(line string) {
	lw.buf[lw.next] = line
	lw.next = (lw.next + 1) % len(lw.buf)

	if lw.size < len(lw.buf) {
		lw.size++
	}

	lw.written++
}

// lines returns the buffered lines oldest first.
func (lw *lineWindow) lines() []string {
	if lw.size == 0 {
		return nil
	}

	out := make([]string, lw.size)
	start := (lw.next - lw.size + len(lw.buf)) % len(lw.buf)

	for i := range lw.size {
		out[i] = lw.buf[(start+i)%len(lw.buf)]
	}

	return out
}
