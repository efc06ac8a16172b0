package log

import (
	"fmt"
	"io"
	"os"
	"strings"
)

var IsVerbose bool

// IsStdout reports whether stdout is a terminal rather than a pipe or file.
var IsStdout = isTerminal(os.Stdout)

func Info(s string, args ...any) {
	write(os.Stdout, "", s, args...)
}

func Warn(s string, args ...any) {
	write(os.Stderr, "WARN: ", s, args...)
}

func Error(s string, args ...any) {
	write(os.Stderr, "", s, args...)
}

// Verbose goes to stderr so that message data on stdout stays pipeable.
func Verbose(s string, args ...any) {
	if IsVerbose {
		write(os.Stderr, "", s, args...)
	}
}

func write(w io.Writer, prefix, s string, args ...any) {
	if len(args) > 0 {
		s = fmt.Sprintf(s, args...)
	}
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	fmt.Fprint(w, prefix+s)
}

func isTerminal(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}
