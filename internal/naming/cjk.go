package naming

import "strconv"

var chineseDigits = map[rune]int{
	'零': 0, '〇': 0,
	'一': 1, '二': 2, '两': 2, '三': 3, '四': 4,
	'五': 5, '六': 6, '七': 7, '八': 8, '九': 9,
}

// parseChineseNumber converts "12", "十二", "二十三" or "一百零五" to an int.
// Returns false for anything it does not recognise.
func parseChineseNumber(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}

	total, current := 0, 0
	seen := false
	for _, r := range s {
		switch {
		case r == '十':
			if current == 0 {
				current = 1
			}
			total += current * 10
			current = 0
		case r == '百':
			if current == 0 {
				current = 1
			}
			total += current * 100
			current = 0
		default:
			d, ok := chineseDigits[r]
			if !ok {
				if r >= '0' && r <= '9' {
					d = int(r - '0')
				} else {
					return 0, false
				}
			}
			current = current*10 + d
		}
		seen = true
	}
	if !seen {
		return 0, false
	}
	return total + current, true
}
