package logger

import (
	"io"
	"regexp"
)

// Redactor scrubs credentials from log output. Browser session dumps are
// the main hazard here: cookie values and OAuth tokens must never reach
// the log file.
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor creates a redactor with the default patterns.
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			// Session cookie values (ChatGPT, Claude, Google)
			regexp.MustCompile(`__Secure-next-auth\.session-token["\s:=]+[^\s",}]+`),
			regexp.MustCompile(`sessionKey["\s:=]+[^\s",}]+`),
			regexp.MustCompile(`SAPISID["\s:=]+[^\s",}]+`),
			regexp.MustCompile(`"value"\s*:\s*"[a-zA-Z0-9._%+-]{40,}"`),

			// Bearer / OAuth tokens
			regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._-]+`),
			regexp.MustCompile(`ya29\.[a-zA-Z0-9._-]+`),

			// API keys that may appear in pasted prompts
			regexp.MustCompile(`sk-[a-zA-Z0-9_-]{20,}`),
			regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`),

			// Generic credentials
			regexp.MustCompile(`password["\s:=]+[^\s"]+`),
			regexp.MustCompile(`token["\s:=]+[a-zA-Z0-9._-]{20,}`),
			regexp.MustCompile(`secret["\s:=]+[^\s"]+`),
		},
	}
}

// AddPattern adds a custom redaction pattern.
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.patterns = append(r.patterns, re)
	return nil
}

// Redact replaces every match with a placeholder.
func (r *Redactor) Redact(s string) string {
	result := s
	for _, pattern := range r.patterns {
		result = pattern.ReplaceAllString(result, "[REDACTED]")
	}
	return result
}

// Wrap returns a writer that redacts everything passing through it.
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{writer: w, redactor: r}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

func (w *redactingWriter) Write(p []byte) (int, error) {
	redacted := w.redactor.Redact(string(p))
	if _, err := w.writer.Write([]byte(redacted)); err != nil {
		return 0, err
	}
	// Report the original length: callers account for what they sent,
	// not the redacted size.
	return len(p), nil
}
