package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// normalizeJSONC blanks out comments and trailing commas so the result is
// plain JSON with every byte at its original offset. Decoder offsets
// therefore map straight back to the user's file.
func normalizeJSONC(content string) (string, error) {
	buf := []byte(content)
	if err := blankComments(buf); err != nil {
		return "", err
	}
	blankTrailingCommas(buf)
	return string(buf), nil
}

func blankComments(buf []byte) error {
	const (
		code = iota
		str
		line
		block
	)

	mode := code
	escaped := false
	for i := 0; i < len(buf); i++ {
		ch := buf[i]
		switch mode {
		case str:
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				mode = code
			}
		case line:
			if ch == '\n' || ch == '\r' {
				mode = code
				continue
			}
			buf[i] = ' '
		case block:
			if ch == '*' && i+1 < len(buf) && buf[i+1] == '/' {
				buf[i], buf[i+1] = ' ', ' '
				i++
				mode = code
				continue
			}
			if !isJSONWhitespace(ch) {
				buf[i] = ' '
			}
		default:
			if ch == '"' {
				mode = str
				continue
			}
			if ch != '/' || i+1 >= len(buf) {
				continue
			}
			switch buf[i+1] {
			case '/':
				mode = line
			case '*':
				mode = block
			default:
				continue
			}
			buf[i], buf[i+1] = ' ', ' '
			i++
		}
	}

	if mode == block {
		return errors.New("unterminated block comment in JSONC")
	}
	return nil
}

func blankTrailingCommas(buf []byte) {
	inString := false
	escaped := false
	for i := 0; i < len(buf); i++ {
		ch := buf[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		if ch == '"' {
			inString = true
			continue
		}
		if ch != ',' {
			continue
		}
		j := i + 1
		for j < len(buf) && isJSONWhitespace(buf[j]) {
			j++
		}
		if j < len(buf) && (buf[j] == '}' || buf[j] == ']') {
			buf[i] = ' '
		}
	}
}

func isJSONWhitespace(ch byte) bool {
	switch ch {
	case ' ', '\n', '\r', '\t':
		return true
	default:
		return false
	}
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra json.RawMessage
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return errors.New("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := min(int(offset), len(content))
	line, col := 1, 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
