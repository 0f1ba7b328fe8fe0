package cdc

import (
	"time"

	"github.com/google/uuid"
)

// FieldKind is how an attribute is read from the image.
type FieldKind int

const (
	KindString FieldKind = iota
	KindInt
)

// Field maps one entity field to an image attribute.
type Field struct {
	Name      string
	Attribute string
	Kind      FieldKind
	// Default produces the value used when the attribute is missing, empty,
	// or unparseable.
	Default func(Env) any
}

// Env supplies generated values for defaults.
type Env struct {
	Now   time.Time
	NewID func() string
}

// FieldTable is an ordered set of field mappings.
type FieldTable []Field

// Values is the result of extracting a FieldTable from an image.
type Values map[string]any

// Str returns name as a string.
func (v Values) Str(name string) string {
	s, _ := v[name].(string)
	return s
}

// Int returns name as an int64.
func (v Values) Int(name string) int64 {
	n, _ := v[name].(int64)
	return n
}

func emptyString(Env) any { return "" }
func zeroInt(Env) any     { return int64(0) }
func nowRFC3339(env Env) any {
	return FormatTimestamp(env.Now)
}

// TimestampLayout is the millisecond UTC form used for generated timestamps.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// VideoFields is the video entity mapping.
var VideoFields = FieldTable{
	{Name: "id", Attribute: "id", Kind: KindString, Default: func(env Env) any { return env.NewID() }},
	{Name: "videoId", Attribute: "videoId", Kind: KindString, Default: emptyString},
	{Name: "title", Attribute: "title", Kind: KindString, Default: emptyString},
	{Name: "description", Attribute: "description", Kind: KindString, Default: emptyString},
	{Name: "category", Attribute: "category", Kind: KindString, Default: func(Env) any { return "Unknown" }},
	{Name: "totalViews", Attribute: "totalViews", Kind: KindInt, Default: zeroInt},
	{Name: "createdAt", Attribute: "createdAt", Kind: KindString, Default: nowRFC3339},
	{Name: "lastModified", Attribute: "lastModified", Kind: KindString, Default: nowRFC3339},
	{Name: "etag", Attribute: "eTag", Kind: KindString, Default: emptyString},
}

// Extract reads every field from img. Missing attributes take their default.
func (t FieldTable) Extract(img Image, env Env) Values {
	if env.NewID == nil {
		env.NewID = uuid.NewString
	}
	if env.Now.IsZero() {
		env.Now = time.Now()
	}
	values := make(Values, len(t))
	for _, field := range t {
		values[field.Name] = field.read(img, env)
	}
	return values
}

func (f Field) read(img Image, env Env) any {
	switch f.Kind {
	case KindInt:
		if n, ok := img.Int(f.Attribute); ok {
			return n
		}
	default:
		if s, ok := img.String(f.Attribute); ok && s != "" {
			return s
		}
	}
	if f.Default == nil {
		return nil
	}
	return f.Default(env)
}
