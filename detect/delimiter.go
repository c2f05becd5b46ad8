package detect

// sniffSize is how much of a file delimiter and layout heuristics look at.
const sniffSize = 1024

// candidates in tie-break order.
var candidates = []rune{'|', '\t', ';', ','}

// DetectDelimiter returns the most frequent candidate delimiter outside
// quoted sections of the first kilobyte. Ties go to the earliest
// candidate; with no candidate present the format default is used.
func DetectDelimiter(text []byte, format Format) rune {
	if len(text) > sniffSize {
		text = text[:sniffSize]
	}
	return mostFrequent(countDelimiters(text), format)
}

func countDelimiters(text []byte) map[rune]int {
	counts := make(map[rune]int, len(candidates))
	quoted := false
	for _, b := range text {
		switch b {
		case '"':
			quoted = !quoted
		case '|', '\t', ';', ',':
			if !quoted {
				counts[rune(b)]++
			}
		}
	}
	return counts
}

func mostFrequent(counts map[rune]int, format Format) rune {
	best, bestCount := rune(0), 0
	for _, c := range candidates {
		if counts[c] > bestCount {
			best, bestCount = c, counts[c]
		}
	}
	if best != 0 {
		return best
	}
	if format == FormatStrict {
		return '|'
	}
	return ';'
}
