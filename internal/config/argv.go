package config

import (
	"fmt"
	"strings"
	"unicode"
)

// splitCommand splits a command line into argv with shell-like quoting.
// A backslash escapes the next rune, inside quotes too. A line starting with
// '#' is commented out.
func splitCommand(line string) ([]string, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil, nil
	}

	var (
		argv   []string
		word   strings.Builder
		inWord bool
	)
	runes := []rune(line)
	escapeErr := fmt.Errorf("unterminated escape sequence in command: %q", line)

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			if inWord {
				argv = append(argv, word.String())
				word.Reset()
				inWord = false
			}
		case r == '\\':
			if i+1 == len(runes) {
				return nil, escapeErr
			}
			i++
			word.WriteRune(runes[i])
			inWord = true
		case r == '\'' || r == '"':
			inWord = true
			closed := false
			for i++; i < len(runes); i++ {
				c := runes[i]
				if c == '\\' {
					if i+1 == len(runes) {
						return nil, escapeErr
					}
					i++
					word.WriteRune(runes[i])
					continue
				}
				if c == r {
					closed = true
					break
				}
				word.WriteRune(c)
			}
			if !closed {
				return nil, fmt.Errorf("unterminated quote in command: %q", line)
			}
		default:
			word.WriteRune(r)
			inWord = true
		}
	}

	if inWord {
		argv = append(argv, word.String())
	}
	return argv, nil
}
