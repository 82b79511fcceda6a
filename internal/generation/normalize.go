package generation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// maxExcerptRunes bounds the model output carried by a ParseError.
const maxExcerptRunes = 200

// maxCandidates bounds how many opener positions Normalize tries before
// giving up on commentary-wrapped output.
const maxCandidates = 16

var (
	leadingFence  = regexp.MustCompile("^```[A-Za-z0-9_-]*[ \t]*\n?")
	trailingFence = regexp.MustCompile("\n?```$")
)

// Normalize coerces raw model output into the value shape expects:
// []QuestionAnswer for ShapeQuestionList, Explanation for ShapeExplanation.
//
// Strategies run cheapest first:
//  1. the trimmed text as-is
//  2. a code fence wrapping the whole output removed, then a span from an
//     opener of the expected shape to the last matching closer
//  3. a structural repair scan from that opener that drops trailing commas,
//     ignores text after the root value closes, and closes a truncated root
//     after its last complete element
//
// When the text as-is is valid JSON it is the only candidate. Otherwise
// strategies 2 and 3 run from each opener in turn, so a stray bracket in
// leading commentary does not hide the payload after it.
//
// The surviving candidate must then match shape; a well-formed value of the
// wrong shape is a ParseError, never a success.
func Normalize(raw string, shape Shape) (any, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, &ParseError{Shape: shape, Excerpt: excerpt(raw), Err: ErrMalformedOutput}
	}

	if json.Valid([]byte(text)) {
		value, err := decodeShape([]byte(text), shape)
		if err != nil {
			return nil, &ParseError{Shape: shape, Excerpt: excerpt(raw), Err: err}
		}
		return value, nil
	}

	var shapeErr error
	stripped := stripFences(text)
	offset := 0
	for i := 0; i < maxCandidates; i++ {
		start := strings.IndexByte(stripped[offset:], shape.opener())
		if start < 0 {
			break
		}
		offset += start

		if candidate, ok := extractJSON(stripped[offset:], shape); ok {
			value, err := decodeShape(candidate, shape)
			if err == nil {
				return value, nil
			}
			if shapeErr == nil {
				shapeErr = err
			}
		}
		offset++
	}

	if shapeErr != nil {
		return nil, &ParseError{Shape: shape, Excerpt: excerpt(raw), Err: shapeErr}
	}
	return nil, &ParseError{Shape: shape, Excerpt: excerpt(raw), Err: ErrMalformedOutput}
}

// stripFences removes a markdown fence that wraps the whole text. Fences
// inside the payload, such as code samples in an answer, are left alone.
func stripFences(text string) string {
	text = leadingFence.ReplaceAllString(text, "")
	text = trailingFence.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// extractJSON returns a syntactically valid candidate rooted at the start of
// body, which must begin with shape's opener.
func extractJSON(body string, shape Shape) ([]byte, bool) {
	if end := strings.LastIndexByte(body, shape.closer()); end > 0 {
		span := body[:end+1]
		if json.Valid([]byte(span)) {
			return []byte(span), true
		}
	}

	repaired, ok := repairJSON(body)
	if !ok || !json.Valid(repaired) {
		return nil, false
	}
	return repaired, true
}

// frame is one open container during the repair scan.
type frame struct {
	closer byte
	object bool
	// inValue is true inside an object between a key's colon and the
	// separator that ends its value.
	inValue bool
}

// repairJSON scans s, which starts with the root opener, and rebuilds it
// without trailing commas. If the root closes, anything after it is
// discarded. If input ends first, the output is cut at the last point where
// a direct child of the root was complete and the root closer is appended.
func repairJSON(s string) ([]byte, bool) {
	out := make([]byte, 0, len(s)+1)
	var stack []frame
	var (
		inString     bool
		escaped      bool
		pendingComma bool
		safeCut      = -1
	)

	// markComplete records a cut point when a direct child of the root has
	// just finished.
	markComplete := func() {
		if len(stack) != 1 {
			return
		}
		top := &stack[0]
		if top.object && !top.inValue {
			return
		}
		safeCut = len(out)
		top.inValue = false
	}

	for i := 0; i < len(s); i++ {
		c := s[i]

		if inString {
			out = append(out, c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
				markComplete()
			}
			continue
		}

		switch c {
		case ' ', '\t', '\n', '\r':
			if !pendingComma {
				out = append(out, c)
			}
			continue
		case ',':
			if len(stack) == 0 {
				return nil, false
			}
			if len(stack) == 1 && (!stack[0].object || stack[0].inValue) {
				safeCut = len(out)
				stack[0].inValue = false
			}
			if len(stack) > 1 && stack[len(stack)-1].object {
				stack[len(stack)-1].inValue = false
			}
			pendingComma = true
			continue
		}

		if pendingComma {
			pendingComma = false
			if c != '}' && c != ']' {
				out = append(out, ',')
			}
		}

		switch c {
		case '"':
			inString = true
			out = append(out, c)
		case '{', '[':
			closer := byte('}')
			if c == '[' {
				closer = ']'
			}
			stack = append(stack, frame{closer: closer, object: c == '{'})
			out = append(out, c)
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1].closer != c {
				return nil, false
			}
			stack = stack[:len(stack)-1]
			out = append(out, c)
			if len(stack) == 0 {
				return out, true
			}
			markComplete()
		case ':':
			if len(stack) > 0 && stack[len(stack)-1].object {
				stack[len(stack)-1].inValue = true
			}
			out = append(out, c)
		default:
			if len(stack) == 0 {
				return nil, false
			}
			out = append(out, c)
		}
	}

	if len(stack) == 0 || safeCut < 0 {
		return nil, false
	}
	repaired := append(trimTrailingSpace(out[:safeCut]), stack[0].closer)
	return repaired, true
}

func trimTrailingSpace(b []byte) []byte {
	for len(b) > 0 {
		switch b[len(b)-1] {
		case ' ', '\t', '\n', '\r':
			b = b[:len(b)-1]
		default:
			return b
		}
	}
	return b
}

func decodeShape(data []byte, shape Shape) (any, error) {
	switch shape {
	case ShapeQuestionList:
		var elems []json.RawMessage
		if err := json.Unmarshal(data, &elems); err != nil {
			return nil, fmt.Errorf("%w: expected an array", ErrShapeMismatch)
		}
		if len(elems) == 0 {
			return nil, fmt.Errorf("%w: empty array", ErrShapeMismatch)
		}
		items := make([]QuestionAnswer, 0, len(elems))
		for i, elem := range elems {
			var obj map[string]any
			if err := json.Unmarshal(elem, &obj); err != nil || obj == nil {
				return nil, fmt.Errorf("%w: element %d is not an object", ErrShapeMismatch, i)
			}
			q, okQ := nonEmptyString(obj, "question")
			a, okA := nonEmptyString(obj, "answer")
			if !okQ || !okA {
				return nil, fmt.Errorf("%w: element %d needs non-empty question and answer", ErrShapeMismatch, i)
			}
			items = append(items, QuestionAnswer{Question: q, Answer: a})
		}
		return items, nil

	case ShapeExplanation:
		var obj map[string]any
		if err := json.Unmarshal(data, &obj); err != nil || obj == nil {
			return nil, fmt.Errorf("%w: expected an object", ErrShapeMismatch)
		}
		title, okT := nonEmptyString(obj, "title")
		body, okE := nonEmptyString(obj, "explanation")
		if !okT || !okE {
			return nil, fmt.Errorf("%w: needs non-empty title and explanation", ErrShapeMismatch)
		}
		return Explanation{Title: title, Explanation: body}, nil

	default:
		return nil, fmt.Errorf("%w: unsupported shape %d", ErrShapeMismatch, shape)
	}
}

func nonEmptyString(obj map[string]any, field string) (string, bool) {
	s, ok := obj[field].(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

// excerpt returns at most maxExcerptRunes runes of s without splitting a
// multi-byte character.
func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= maxExcerptRunes {
		return s
	}
	n := 0
	for i := range s {
		if n == maxExcerptRunes {
			return s[:i] + "..."
		}
		n++
	}
	return s
}
