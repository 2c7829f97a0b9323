package classify

import (
	"regexp"
	"unicode"
	"unicode/utf8"
)

// timeMarkers recognize explicit references to when something started.
var timeMarkers = []*regexp.Regexp{
	regexp.MustCompile(`([0-9０-９]+|[一二兩两三四五六七八九十半幾几多]+)\s*(個|个)?\s*(天|日|週|周|星期|禮拜|礼拜|月|年)\s*(前|之前|以前)`),
	regexp.MustCompile(`(昨天|前天|昨晚|今天早上|今早|上週|上周|上禮拜|上礼拜|上個月|上个月|去年)`),
	regexp.MustCompile(`(?i)\b(\d+|a|an|one|two|three|four|five|six|seven|eight|nine|ten|a few|few|several|couple of)\s+(days?|weeks?|months?|years?)\s+ago\b`),
	regexp.MustCompile(`(?i)\b(yesterday|this morning|last night|last week|last month|last year)\b`),
}

// HasTimeMarker reports whether text names a point in time relative to now,
// such as "三天前", "昨天" or "two weeks ago".
func HasTimeMarker(text string) bool {
	for _, re := range timeMarkers {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// SplitSentences cuts text after each sentence terminator (。 . ! ? ！ ？).
// Runs of terminators and the whitespace that follows them stay with the
// sentence they end. A '.' between two digits is a decimal point. The
// returned fragments concatenate to text.
func SplitSentences(text string) []string {
	var (
		out   []string
		start int
	)
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !isTerminator(text, i, r) {
			i += size
			continue
		}
		end := i + size
		for end < len(text) {
			next, n := utf8.DecodeRuneInString(text[end:])
			if !isTerminator(text, end, next) && !unicode.IsSpace(next) {
				break
			}
			end += n
		}
		out = append(out, text[start:end])
		start, i = end, end
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

// isTerminator reports whether r, found at byte offset i of text, ends a
// sentence.
func isTerminator(text string, i int, r rune) bool {
	switch r {
	case '。', '!', '?', '！', '？':
		return true
	case '.':
		if i == 0 || i+1 >= len(text) {
			return true
		}
		prev, _ := utf8.DecodeLastRuneInString(text[:i])
		next, _ := utf8.DecodeRuneInString(text[i+1:])
		return !(unicode.IsDigit(prev) && unicode.IsDigit(next))
	}
	return false
}
