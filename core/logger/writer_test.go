package logger

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestAsyncWriterFansOut(t *testing.T) {
	a, b := &bytes.Buffer{}, &bytes.Buffer{}
	w := newAsyncWriter([]io.Writer{a, nil, b}, 16)
	for _, line := range []string{"one\n", "two\n", "three\n"} {
		if err := w.Write([]byte(line)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if a.String() != "one\ntwo\nthree\n" || b.String() != a.String() {
		t.Fatalf("unexpected sink contents %q / %q", a.String(), b.String())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestAsyncWriterKeepsHealthySinks(t *testing.T) {
	good := &bytes.Buffer{}
	w := newAsyncWriter([]io.Writer{failingWriter{}, good}, 1)
	_ = w.Write([]byte("hello\n"))
	_ = w.Write([]byte("world\n"))

	err := w.Close()
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected sink failure, got %v", err)
	}
	if good.String() != "hello\nworld\n" {
		t.Fatalf("healthy sink lost records: %q", good.String())
	}
}

func TestAsyncWriterAfterClose(t *testing.T) {
	w := newAsyncWriter([]io.Writer{&bytes.Buffer{}}, 0)
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := w.Write([]byte("late")); !errors.Is(err, errWriterClosed) {
		t.Fatalf("expected errWriterClosed, got %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("flush after close: %v", err)
	}
}
