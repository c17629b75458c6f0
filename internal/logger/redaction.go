package logger

import (
	"io"
	"regexp"
)

// Redactor masks account credentials before they reach any log sink.
// Account numbers are 8 digits, sort codes 6 digits (optionally dashed).
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor creates a redactor with the built-in credential patterns
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\b\d{8}\b`),
			regexp.MustCompile(`\b\d{2}-\d{2}-\d{2}\b`),
			regexp.MustCompile(`\b\d{6}\b`),
		},
	}
}

// Redact replaces credential patterns in s with a mask
func (r *Redactor) Redact(s string) string {
	for _, p := range r.patterns {
		s = p.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}

// Wrap returns a writer that redacts every line written through it
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{redactor: r, next: w}
}

type redactingWriter struct {
	redactor *Redactor
	next     io.Writer
}

func (w *redactingWriter) Write(p []byte) (int, error) {
	redacted := w.redactor.Redact(string(p))
	if _, err := w.next.Write([]byte(redacted)); err != nil {
		return 0, err
	}
	// Report the original length so zerolog does not treat the
	// write as short when the mask changes the byte count.
	return len(p), nil
}
