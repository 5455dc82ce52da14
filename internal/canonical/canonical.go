package canonical

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/nao1215/devprint/internal/model"
	"golang.org/x/text/unicode/norm"
)

// Serialization tokens. Changing any of them changes every fingerprint.
const (
	// UnavailableToken is emitted for the Unavailable sentinel.
	UnavailableToken = "#unavailable"

	// EntrySeparator separates top-level category entries.
	EntrySeparator = ";"

	// ElementSeparator separates list elements and map fields.
	ElementSeparator = ","

	// KeyValueSeparator joins a category or map key to its value.
	KeyValueSeparator = "="

	// FloatPrecision is the fixed number of decimal digits for floats.
	FloatPrecision = 6
)

var (
	// ErrDuplicateCategory is returned when two entries share a category
	// after Unicode normalization.
	ErrDuplicateCategory = errors.New("duplicate category")

	// ErrEmptyCategory is returned for an entry without a category name.
	ErrEmptyCategory = errors.New("empty category")

	// ErrInvalidText is returned when a string is not valid UTF-8.
	ErrInvalidText = errors.New("invalid UTF-8 text")

	// ErrInvalidNumber is returned for NaN or infinite floats.
	ErrInvalidNumber = errors.New("non-finite number")
)

// Canonicalize renders signals as their canonical form.
//
// Entries are ordered by the byte-wise order of their NFC-normalized
// category, so the result does not depend on the order of the input. The
// Source of each signal is not part of the form.
func Canonicalize(signals []model.Signal) (string, error) {
	type entry struct {
		key   string
		value model.Value
	}

	entries := make([]entry, 0, len(signals))
	for _, s := range signals {
		key, err := Key(s.Category)
		if err != nil {
			return "", fmt.Errorf("category %q: %w", s.Category, err)
		}
		entries = append(entries, entry{key: key, value: s.Value})
	}

	slices.SortFunc(entries, func(a, b entry) int {
		return strings.Compare(a.key, b.key)
	})

	var sb strings.Builder
	for i, e := range entries {
		if i > 0 {
			if entries[i-1].key == e.key {
				return "", fmt.Errorf("%w: %q", ErrDuplicateCategory, e.key)
			}
			sb.WriteString(EntrySeparator)
		}
		writeQuoted(&sb, e.key)
		sb.WriteString(KeyValueSeparator)
		if err := writeValue(&sb, e.value); err != nil {
			return "", fmt.Errorf("category %q: %w", e.key, err)
		}
	}
	return sb.String(), nil
}

// CanonicalizeSignals renders a probe's category mapping.
func CanonicalizeSignals(signals model.Signals) (string, error) {
	return Canonicalize(signals.Attribute(""))
}

// CanonicalizeValue renders a single value. It is mainly useful for display
// and for comparing individual categories across records.
func CanonicalizeValue(v model.Value) (string, error) {
	var sb strings.Builder
	if err := writeValue(&sb, v); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func writeValue(sb *strings.Builder, v model.Value) error {
	switch v.Kind() {
	case model.KindUnavailable:
		sb.WriteString(UnavailableToken)
	case model.KindString, model.KindInt, model.KindFloat, model.KindBool:
		return writeScalar(sb, v)
	case model.KindList:
		sb.WriteString("[")
		for i, item := range v.Items() {
			if i > 0 {
				sb.WriteString(ElementSeparator)
			}
			if err := writeScalar(sb, item); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
		sb.WriteString("]")
	case model.KindMap:
		return writeMap(sb, v)
	default:
		return fmt.Errorf("%w: kind %s", model.ErrUnsupportedShape, v.Kind())
	}
	return nil
}

func writeMap(sb *strings.Builder, v model.Value) error {
	type field struct {
		key   string
		value model.Value
	}

	fields := make([]field, 0, v.Len())
	for _, k := range v.Keys() {
		key, err := normalizeText(k)
		if err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
		fv, _ := v.Field(k)
		fields = append(fields, field{key: key, value: fv})
	}
	// Keys are sorted again after normalization because NFC can reorder them.
	slices.SortFunc(fields, func(a, b field) int {
		return strings.Compare(a.key, b.key)
	})

	sb.WriteString("{")
	for i, f := range fields {
		if i > 0 {
			if fields[i-1].key == f.key {
				return fmt.Errorf("%w: map key %q", ErrDuplicateCategory, f.key)
			}
			sb.WriteString(ElementSeparator)
		}
		writeQuoted(sb, f.key)
		sb.WriteString(KeyValueSeparator)
		if err := writeValue(sb, f.value); err != nil {
			return fmt.Errorf("key %q: %w", f.key, err)
		}
	}
	sb.WriteString("}")
	return nil
}

func writeScalar(sb *strings.Builder, v model.Value) error {
	switch v.Kind() {
	case model.KindString:
		s, _ := v.Str()
		text, err := normalizeText(s)
		if err != nil {
			return err
		}
		writeQuoted(sb, text)
	case model.KindInt:
		n, _ := v.IntValue()
		sb.WriteString(strconv.FormatInt(n, 10))
	case model.KindFloat:
		f, _ := v.FloatValue()
		text, err := FormatFloat(f)
		if err != nil {
			return err
		}
		sb.WriteString(text)
	case model.KindBool:
		b, _ := v.BoolValue()
		sb.WriteString(strconv.FormatBool(b))
	default:
		return fmt.Errorf("%w: %s is not a scalar", model.ErrUnsupportedShape, v.Kind())
	}
	return nil
}

// FormatFloat renders f with FloatPrecision decimal digits, independent of
// the host locale. Negative zero renders as zero.
func FormatFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("%w: %v", ErrInvalidNumber, f)
	}
	text := strconv.FormatFloat(f, 'f', FloatPrecision, 64)
	// Tiny negatives round to "-0.000000" as well as -0 itself.
	if strings.TrimLeft(text[1:], "0.") == "" && text[0] == '-' {
		text = text[1:]
	}
	return text, nil
}

// Key returns the normalized form of a category under which it is sorted
// and compared for duplicates.
func Key(category string) (string, error) {
	if category == "" {
		return "", ErrEmptyCategory
	}
	return normalizeText(category)
}

func normalizeText(s string) (string, error) {
	if !utf8.ValidString(s) {
		return "", ErrInvalidText
	}
	return norm.NFC.String(s), nil
}

// writeQuoted writes s between double quotes, escaping only backslash and
// the quote itself so the output does not depend on Unicode tables.
func writeQuoted(sb *strings.Builder, s string) {
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' || c == '"' {
			sb.WriteByte('\\')
		}
		sb.WriteByte(c)
	}
	sb.WriteByte('"')
}
