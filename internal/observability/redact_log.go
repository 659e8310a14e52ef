package observability

import (
	"io"
	"regexp"
)

// redactionKeywords trigger redaction when followed by one of the
// separators below and a value.
var redactionKeywords = []string{
	"password", "passwd", "pwd", "secret", "token", "apikey", "api_key",
	"auth", "authorization", "credential", "key", "private", "session",
	"cookie", "jwt", "bearer", "oauth",
}

// redactionPattern matches "<keyword><separator><value>" where separator is
// " is ", ":", or "=" and value runs until the next whitespace/comma/quote.
var redactionPattern = buildRedactionPattern()

func buildRedactionPattern() *regexp.Regexp {
	group := ""
	for i, kw := range redactionKeywords {
		if i > 0 {
			group += "|"
		}
		group += kw
	}
	// separator is " is ", ":" or "="; value is anything up to a boundary.
	return regexp.MustCompile(`(?i)(` + group + `)( is |[:=])([^\s,;"']+)`)
}

// RedactMessage applies the keyword/separator/value redaction policy to a
// single log line, replacing the value with [REDACTED].
func RedactMessage(msg string) string {
	return redactionPattern.ReplaceAllString(msg, "${1}${2}[REDACTED]")
}

// Redact applies the redaction policy to a free-form string before it is
// interpolated into a log message or attached as a field value.
func Redact(msg string) string {
	return RedactMessage(msg)
}

// redactingWriter wraps an io.Writer and redacts each formatted log record
// before it reaches the underlying sink, satisfying the "applied at format
// time" requirement for any field a caller forgot to pre-redact.
type redactingWriter struct {
	w io.Writer
}

func newRedactingWriter(w io.Writer) *redactingWriter {
	return &redactingWriter{w: w}
}

func (r *redactingWriter) Write(p []byte) (int, error) {
	redacted := redactionPattern.ReplaceAll(p, []byte("${1}${2}[REDACTED]"))
	if _, err := r.w.Write(redacted); err != nil {
		return 0, err
	}
	return len(p), nil
}
