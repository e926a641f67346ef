package render

import "strings"

// MeasureFunc returns the rendered width of a string at the current font.
type MeasureFunc func(s string) (float64, error)

// WrapText splits text into lines that fit maxWidth. Words move to the next
// line when they overflow; a single token wider than the box is split
// character by character. Explicit newlines are respected.
func WrapText(text string, maxWidth float64, measure MeasureFunc) ([]string, error) {
	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		wrapped, err := wrapParagraph(paragraph, maxWidth, measure)
		if err != nil {
			return nil, err
		}
		if len(wrapped) == 0 {
			lines = append(lines, "")
			continue
		}
		lines = append(lines, wrapped...)
	}
	return lines, nil
}

func wrapParagraph(text string, maxWidth float64, measure MeasureFunc) ([]string, error) {
	var lines []string
	current := ""

	for _, word := range strings.Fields(text) {
		candidate := word
		if current != "" {
			candidate = current + " " + word
		}
		width, err := measure(candidate)
		if err != nil {
			return nil, err
		}
		if width <= maxWidth {
			current = candidate
			continue
		}

		if current != "" {
			lines = append(lines, current)
			current = ""
		}

		width, err = measure(word)
		if err != nil {
			return nil, err
		}
		if width <= maxWidth {
			current = word
			continue
		}

		part, split, err := splitToken(word, maxWidth, measure)
		if err != nil {
			return nil, err
		}
		lines = append(lines, split...)
		current = part
	}

	if current != "" {
		lines = append(lines, current)
	}
	return lines, nil
}

// splitToken breaks an overlong token into full lines plus the remainder.
func splitToken(token string, maxWidth float64, measure MeasureFunc) (string, []string, error) {
	var lines []string
	part := ""
	for _, r := range token {
		candidate := part + string(r)
		width, err := measure(candidate)
		if err != nil {
			return "", nil, err
		}
		if width > maxWidth && part != "" {
			lines = append(lines, part)
			part = string(r)
			continue
		}
		part = candidate
	}
	return part, lines, nil
}
