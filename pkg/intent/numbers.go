package intent

import "strings"

// chineseNumeral is one entry of the length-priority Chinese numeral table.
type chineseNumeral struct {
	text  string
	value int
}

// chineseNumerals is the complete 0-100 table, byte-for-byte from
// ExtractNumberWithContext's chinese_numbers_complete, ordered three-
// character values first, then two-character, then single-character, so a
// scan always prefers the longest (most specific) match.
var chineseNumerals = []chineseNumeral{
	{"九十九", 99}, {"九十八", 98}, {"九十七", 97}, {"九十六", 96}, {"九十五", 95},
	{"九十四", 94}, {"九十三", 93}, {"九十二", 92}, {"九十一", 91},
	{"八十九", 89}, {"八十八", 88}, {"八十七", 87}, {"八十六", 86}, {"八十五", 85},
	{"八十四", 84}, {"八十三", 83}, {"八十二", 82}, {"八十一", 81},
	{"七十九", 79}, {"七十八", 78}, {"七十七", 77}, {"七十六", 76}, {"七十五", 75},
	{"七十四", 74}, {"七十三", 73}, {"七十二", 72}, {"七十一", 71},
	{"六十九", 69}, {"六十八", 68}, {"六十七", 67}, {"六十六", 66}, {"六十五", 65},
	{"六十四", 64}, {"六十三", 63}, {"六十二", 62}, {"六十一", 61},
	{"五十九", 59}, {"五十八", 58}, {"五十七", 57}, {"五十六", 56}, {"五十五", 55},
	{"五十四", 54}, {"五十三", 53}, {"五十二", 52}, {"五十一", 51},
	{"四十九", 49}, {"四十八", 48}, {"四十七", 47}, {"四十六", 46}, {"四十五", 45},
	{"四十四", 44}, {"四十三", 43}, {"四十二", 42}, {"四十一", 41},
	{"三十九", 39}, {"三十八", 38}, {"三十七", 37}, {"三十六", 36}, {"三十五", 35},
	{"三十四", 34}, {"三十三", 33}, {"三十二", 32}, {"三十一", 31},
	{"二十九", 29}, {"二十八", 28}, {"二十七", 27}, {"二十六", 26}, {"二十五", 25},
	{"二十四", 24}, {"二十三", 23}, {"二十二", 22}, {"二十一", 21},
	{"一十", 10}, {"十一", 11}, {"十二", 12}, {"十三", 13}, {"十四", 14}, {"十五", 15},
	{"十六", 16}, {"十七", 17}, {"十八", 18}, {"十九", 19}, {"二十", 20},
	{"三十", 30}, {"四十", 40}, {"五十", 50}, {"六十", 60}, {"七十", 70},
	{"八十", 80}, {"九十", 90}, {"一百", 100},
	{"十", 10}, {"一", 1}, {"二", 2}, {"三", 3}, {"四", 4}, {"五", 5},
	{"六", 6}, {"七", 7}, {"八", 8}, {"九", 9}, {"零", 0},
}

// numberHit is a decimal or Chinese-numeral match: value and its byte
// offset (one past the end of the matched run), mirroring
// ExtractNumberWithContext's positions (std::string::find/length operate on
// byte offsets for UTF-8 text, so byte offsets here reproduce the original's
// distance arithmetic exactly).
type numberHit struct {
	value int
	pos   int
}

// findArabicRuns scans text for contiguous ASCII-digit runs of at most 3
// digits whose value is in 0..100, recording the offset just past each run.
func findArabicRuns(text string) []numberHit {
	var hits []numberHit
	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		run := text[start:end]
		start = -1
		if len(run) > 3 {
			return
		}
		n := 0
		for _, c := range run {
			n = n*10 + int(c-'0')
		}
		if n >= 0 && n <= 100 {
			hits = append(hits, numberHit{value: n, pos: end})
		}
	}
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c >= '0' && c <= '9' {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(text))
	return hits
}

// findChineseRuns scans text for the chineseNumerals table, longest entries
// first, masking out each match (with same-length 'X' filler, to preserve
// byte offsets) so a matched substring cannot also satisfy a shorter entry,
// mirroring the original's placeholder-replacement anti-overlap trick.
func findChineseRuns(text string) []numberHit {
	work := []byte(text)
	var hits []numberHit
	for _, n := range chineseNumerals {
		needle := n.text
		pos := 0
		for {
			idx := strings.Index(string(work[pos:]), needle)
			if idx < 0 {
				break
			}
			at := pos + idx
			hits = append(hits, numberHit{value: n.value, pos: at + len(needle)})
			for i := 0; i < len(needle); i++ {
				work[at+i] = 'X'
			}
			pos = at + len(needle)
		}
	}
	return hits
}

// extractNumberStatic returns the first recognizable number in text with no
// positional context, or -1 if none is found.
func extractNumberStatic(text string) int {
	if hits := findArabicRuns(text); len(hits) > 0 {
		return hits[0].value
	}
	for _, n := range chineseNumerals {
		if strings.Contains(text, n.text) {
			return n.value
		}
	}
	return -1
}

// extractNumberWithContext collects every recognizable number in text (both
// Arabic and Chinese-numeral), then returns the one closest to the earliest
// occurring context keyword — preferring numbers that appear after the
// keyword (plain distance) over numbers that appear before it (distance +
// 1000 penalty). If no context keyword is present, the first number found
// is returned. If no number is found, -1 is returned.
func extractNumberWithContext(text string, contextKeywords []string) int {
	if text == "" || len(contextKeywords) == 0 {
		return extractNumberStatic(text)
	}

	hits := findArabicRuns(text)
	hits = append(hits, findChineseRuns(text)...)
	if len(hits) == 0 {
		return -1
	}

	keywordPos := -1
	for _, kw := range contextKeywords {
		idx := strings.Index(text, kw)
		if idx < 0 {
			continue
		}
		if keywordPos < 0 || idx < keywordPos {
			keywordPos = idx
		}
	}

	if keywordPos < 0 {
		return hits[0].value
	}

	best := hits[0].value
	minScore := -1
	for _, h := range hits {
		distance := h.pos - keywordPos
		if distance < 0 {
			distance = -distance
		}
		score := distance
		if h.pos <= keywordPos {
			score = distance + 1000
		}
		if minScore < 0 || score < minScore {
			minScore = score
			best = h.value
		}
	}
	return best
}
