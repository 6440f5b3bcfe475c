package logger

import (
	"io"
	"regexp"
)

// Redactor redacts sensitive information from logs
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor creates a redactor for credentials that can end up in logged
// parameters, paths or script errors
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			// Bearer and basic credentials
			regexp.MustCompile(`(?i)(bearer|basic)\s+[a-zA-Z0-9._~+/=-]+`),

			// Credentials embedded in URLs
			regexp.MustCompile(`://[^/\s:@"]+:[^/\s@"]+@`),

			// key=value and "key":"value" secrets
			regexp.MustCompile(`(?i)(password|passwd|pwd|secret|token|api_?key)("?\s*[:=]\s*"?)[^\s",}]+`),

			// AWS access keys
			regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
		},
	}
}

// AddPattern adds a custom redaction pattern
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.patterns = append(r.patterns, re)
	return nil
}

// Redact redacts sensitive information from a string
func (r *Redactor) Redact(s string) string {
	result := s
	for _, pattern := range r.patterns {
		if pattern.NumSubexp() >= 2 {
			// keep the key and separator of key/value matches
			result = pattern.ReplaceAllString(result, "${1}${2}[REDACTED]")
			continue
		}
		result = pattern.ReplaceAllString(result, "[REDACTED]")
	}
	return result
}

// Wrap wraps an io.Writer to redact sensitive information
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{
		writer:   w,
		redactor: r,
	}
}

// redactingWriter is an io.Writer that redacts sensitive information
type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write reports len(p) on success since the redacted output length differs
func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := w.writer.Write([]byte(w.redactor.Redact(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}
