package delta

import "fmt"

// ApplyTo applies the operations of d to text in array order and returns the result.
// Each operation's positions are resolved against the text left by the previous one.
// On error the input text is unchanged from the caller's point of view.
func (d Delta) ApplyTo(text string) (string, error) {
	runes := []rune(text)
	for i, op := range d.Changes {
		next, err := applyOp(runes, op)
		if err != nil {
			return text, fmt.Errorf("change %d: %w", i, err)
		}
		runes = next
	}
	return string(runes), nil
}

func applyOp(runes []rune, op Operation) ([]rune, error) {
	if err := op.Validate(); err != nil {
		return nil, err
	}
	start, err := Offset(runes, op.StartLine, op.StartCol)
	if err != nil {
		return nil, err
	}
	end, err := Offset(runes, op.EndLine, op.EndCol)
	if err != nil {
		return nil, err
	}

	insert := []rune(op.NewText)
	out := make([]rune, 0, len(runes)-(end-start)+len(insert))
	out = append(out, runes[:start]...)
	out = append(out, insert...)
	out = append(out, runes[end:]...)
	return out, nil
}

// Offset converts a 1-based line/column position into a rune offset.
// The column may point one past the last character of the line.
func Offset(runes []rune, line, col int) (int, error) {
	lineStart := 0
	for l := 1; l < line; l++ {
		i := lineStart
		for i < len(runes) && runes[i] != '\n' {
			i++
		}
		if i == len(runes) {
			return 0, fmt.Errorf("%w: line %d, text has %d lines", ErrOutOfRange, line, l)
		}
		lineStart = i + 1
	}

	lineEnd := lineStart
	for lineEnd < len(runes) && runes[lineEnd] != '\n' {
		lineEnd++
	}
	if col-1 > lineEnd-lineStart {
		return 0, fmt.Errorf("%w: column %d on line %d of length %d", ErrOutOfRange, col, line, lineEnd-lineStart)
	}
	return lineStart + col - 1, nil
}

// End returns the position just after the last character of text.
func End(text string) (line, col int) {
	line, col = 1, 1
	for _, r := range text {
		if r == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}

// Insert builds an operation inserting s at the given position.
func Insert(line, col int, s string) Operation {
	return Operation{StartLine: line, StartCol: col, EndLine: line, EndCol: col, NewText: s, ForceMoveMarkers: true}
}
