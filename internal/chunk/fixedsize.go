package chunk

import "unicode"

// splitFixedSize partitions text into whitespace-delimited words; this is
// the atomic unit for FIXED_SIZE packing and the terminal fallback for
// every other strategy when a larger unit overflows the chunk budget.
func splitFixedSize(text string) []unit {
	var units []unit
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				units = append(units, unit{text: text[start:i], start: start, end: i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		units = append(units, unit{text: text[start:], start: start, end: len(text)})
	}
	if len(units) == 0 {
		return []unit{{text: text, start: 0, end: len(text)}}
	}
	return units
}
