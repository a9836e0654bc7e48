package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type jsoncState int

const (
	inCode jsoncState = iota
	inString
	inStringEscape
	inLineComment
	inBlockComment
)

// stripJSONC blanks comments and trailing commas with spaces. Newlines are
// kept, so decoder offsets into the result map to the same line and column
// in src.
func stripJSONC(src string) (string, error) {
	out := []byte(src)
	state := inCode
	pendingComma := -1

	for i := 0; i < len(out); i++ {
		ch := out[i]
		switch state {
		case inString:
			switch ch {
			case '\\':
				state = inStringEscape
			case '"':
				state = inCode
			}
		case inStringEscape:
			state = inString
		case inLineComment:
			if ch == '\n' || ch == '\r' {
				state = inCode
			} else {
				out[i] = ' '
			}
		case inBlockComment:
			if ch == '*' && i+1 < len(out) && out[i+1] == '/' {
				out[i], out[i+1] = ' ', ' '
				i++
				state = inCode
			} else if !isJSONWhitespace(ch) {
				out[i] = ' '
			}
		default:
			switch {
			case ch == '/' && i+1 < len(out) && (out[i+1] == '/' || out[i+1] == '*'):
				state = inLineComment
				if out[i+1] == '*' {
					state = inBlockComment
				}
				out[i], out[i+1] = ' ', ' '
				i++
			case ch == '"':
				state = inString
				pendingComma = -1
			case ch == ',':
				pendingComma = i
			case ch == '}' || ch == ']':
				if pendingComma >= 0 {
					out[pendingComma] = ' '
				}
				pendingComma = -1
			case !isJSONWhitespace(ch):
				pendingComma = -1
			}
		}
	}

	if state == inBlockComment {
		return "", errors.New("unterminated block comment in JSONC")
	}
	return string(out), nil
}

func isJSONWhitespace(ch byte) bool {
	return ch == ' ' || ch == '\n' || ch == '\r' || ch == '\t'
}

// ensureSingleJSONValue fails when anything but whitespace follows the
// decoded value.
func ensureSingleJSONValue(decoder *json.Decoder) error {
	tok, err := decoder.Token()
	switch {
	case errors.Is(err, io.EOF):
		return nil
	case err != nil:
		return err
	default:
		return fmt.Errorf("multiple JSON values are not allowed (found %v after the config object)", tok)
	}
}

// locateJSONError prefixes decoder errors that carry an offset with a
// 1-based line and column.
func locateJSONError(content string, err error) error {
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
		offset    int64
	)
	switch {
	case errors.As(err, &syntaxErr):
		offset = syntaxErr.Offset
	case errors.As(err, &typeErr):
		offset = typeErr.Offset
	default:
		return err
	}
	line, col := offsetToLineCol(content, offset)
	return fmt.Errorf("line %d column %d: %w", line, col, err)
}

// offsetToLineCol maps a decoder offset (bytes consumed, so one past the
// offending byte) to the position of that byte.
func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}
	end := min(int(offset), len(content)) - 1
	if end < 0 {
		return 1, 1
	}
	prefix := content[:end]
	line := 1 + strings.Count(prefix, "\n")
	col := end - strings.LastIndexByte(prefix, '\n')
	return line, col
}
