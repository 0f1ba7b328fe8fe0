package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Console lines read
//
//	<ts> <LEVEL> <component>/<stage>: <msg> [file:line] <subject fields> <fields> <diagnostic fields>
//
// Subject fields identify what the line is about and always come first so
// `vidflow logs --execution` and grep find them; diagnostic fields trail.
var (
	subjectKeys    = []string{FieldExecutionID, FieldRecordID, "video_id", FieldCorrelationID}
	diagnosticKeys = []string{FieldEventType, FieldErrorHint, FieldImpact, "error"}
)

type consoleHandler struct {
	mu        *sync.Mutex
	w         io.Writer
	level     *slog.LevelVar
	attrs     []field
	groups    []string
	addSource bool
}

type field struct {
	key   string
	value slog.Value
}

func newConsoleHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &consoleHandler{mu: &sync.Mutex{}, w: w, level: lvl, addSource: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	fields := make([]field, 0, len(h.attrs)+record.NumAttrs())
	fields = append(fields, h.attrs...)
	record.Attrs(func(attr slog.Attr) bool {
		fields = appendFlattened(fields, h.groups, attr)
		return true
	})

	component := take(&fields, FieldComponent)
	stage := take(&fields, FieldStage)

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	var buf bytes.Buffer
	buf.WriteString(ts.UTC().Format(time.RFC3339))
	fmt.Fprintf(&buf, " %-5s ", levelLabel(record.Level))
	switch {
	case component != "" && stage != "":
		buf.WriteString(component + "/" + stage + ": ")
	case component != "":
		buf.WriteString(component + ": ")
	case stage != "":
		buf.WriteString(stage + ": ")
	}
	msg := strings.TrimSpace(record.Message)
	if msg == "" {
		msg = "(no message)"
	}
	buf.WriteString(msg)

	if h.addSource {
		if src := record.Source(); src != nil {
			fmt.Fprintf(&buf, " [%s:%d]", filepath.Base(src.File), src.Line)
		}
	}

	for _, f := range orderFields(fields) {
		buf.WriteByte(' ')
		buf.WriteString(f.key)
		buf.WriteByte('=')
		buf.WriteString(formatValue(f.value))
	}
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append([]field(nil), h.attrs...)
	for _, attr := range attrs {
		clone.attrs = appendFlattened(clone.attrs, h.groups, attr)
	}
	return &clone
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

func appendFlattened(dst []field, groups []string, attr slog.Attr) []field {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return dst
	}
	if attr.Value.Kind() == slog.KindGroup {
		inner := groups
		if attr.Key != "" {
			inner = append(append([]string(nil), groups...), attr.Key)
		}
		for _, a := range attr.Value.Group() {
			dst = appendFlattened(dst, inner, a)
		}
		return dst
	}
	key := attr.Key
	if len(groups) > 0 {
		key = strings.Join(append(append([]string(nil), groups...), key), ".")
	}
	return append(dst, field{key: key, value: attr.Value})
}

// take removes every field named key and returns the first value.
func take(fields *[]field, key string) string {
	var value string
	kept := (*fields)[:0]
	for _, f := range *fields {
		if f.key == key {
			if value == "" {
				value = plainString(f.value)
			}
			continue
		}
		kept = append(kept, f)
	}
	*fields = kept
	return value
}

// orderFields puts subject keys first and diagnostic keys last. A repeated
// subject key, as added by nested WithContext calls, is printed once.
func orderFields(fields []field) []field {
	rank := func(key string) int {
		for _, k := range subjectKeys {
			if k == key {
				return 0
			}
		}
		for _, k := range diagnosticKeys {
			if k == key {
				return 2
			}
		}
		return 1
	}
	out := make([]field, 0, len(fields))
	seenSubject := map[string]bool{}
	for want := 0; want <= 2; want++ {
		for _, f := range fields {
			if f.key == "" || rank(f.key) != want {
				continue
			}
			if want == 0 {
				if seenSubject[f.key] {
					continue
				}
				seenSubject[f.key] = true
			}
			out = append(out, f)
		}
	}
	return out
}

func plainString(v slog.Value) string {
	if v.Kind() == slog.KindAny {
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
	}
	return v.String()
}

func formatValue(v slog.Value) string {
	var s string
	switch v.Kind() {
	case slog.KindTime:
		s = v.Time().UTC().Format(time.RFC3339)
	case slog.KindFloat64:
		s = strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindAny:
		s = plainString(v)
	default:
		s = v.String()
	}
	if needsQuotes(s) {
		return strconv.Quote(s)
	}
	return s
}

func needsQuotes(s string) bool {
	return s == "" || strings.ContainsFunc(s, func(r rune) bool {
		return r <= ' ' || r == '=' || r == '"'
	})
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
