package logger

import (
	"io"
	"regexp"
	"sync"
)

const redacted = "[REDACTED]"

type rule struct {
	re          *regexp.Regexp
	replacement string
}

// Redactor redacts sensitive information from logs. Replacements keep
// JSON lines well-formed so console formatting still parses them.
type Redactor struct {
	mu    sync.RWMutex
	rules []rule
}

func literal(re *regexp.Regexp) rule {
	return rule{re: re, replacement: redacted}
}

// NewRedactor creates a new redactor with default patterns
func NewRedactor() *Redactor {
	return &Redactor{
		rules: []rule{
			// API keys
			literal(regexp.MustCompile(`sk-[a-zA-Z0-9_-]{20,}`)),

			// Bearer tokens
			{re: regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._~+/=-]+`), replacement: "Bearer " + redacted},

			// Secrets in JSON fields and key=value pairs
			{
				re:          regexp.MustCompile(`(?i)"(auth_token|token|api_key|password|secret)"(\s*):(\s*)"[^"]*"`),
				replacement: `"$1"$2:$3"` + redacted + `"`,
			},
			{re: regexp.MustCompile(`(?i)\b(token|password|secret)=[^\s&"]+`), replacement: "$1=" + redacted},

			// AWS keys
			literal(regexp.MustCompile(`AKIA[0-9A-Z]{16}`)),
		},
	}
}

// AddPattern adds a custom redaction pattern
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.rules = append(r.rules, literal(re))
	r.mu.Unlock()
	return nil
}

// AddSecret redacts every literal occurrence of secret.
func (r *Redactor) AddSecret(secret string) {
	if len(secret) < 4 {
		return
	}
	r.mu.Lock()
	r.rules = append(r.rules, literal(regexp.MustCompile(regexp.QuoteMeta(secret))))
	r.mu.Unlock()
}

// Redact redacts sensitive information from a string
func (r *Redactor) Redact(s string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := s
	for _, rule := range r.rules {
		result = rule.re.ReplaceAllString(result, rule.replacement)
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

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write reports len(p) on success so zerolog does not treat the
// shortened output as a short write.
func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := w.writer.Write([]byte(w.redactor.Redact(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}
