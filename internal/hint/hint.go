// Package hint decides which letters of the secret word are disclosed and
// when. Everything here is a pure function of (duration, word, elapsed), so a
// reconnecting client recomputes exactly what the server already revealed.
package hint

type Kind string

const (
	KindFirstLetter Kind = "first_letter"
	KindLastLetter  Kind = "last_letter"
	KindPattern     Kind = "pattern"
)

type Hint struct {
	Kind  Kind
	Value string
}

// Schedule holds the percentage of the turn that must have elapsed before
// each hint is shown. Values must be increasing.
type Schedule struct {
	FirstLetterAt int
	LastLetterAt  int
	PatternAt     int
}

var DefaultSchedule = Schedule{FirstLetterAt: 50, LastLetterAt: 75, PatternAt: 90}

// kinds lists the hints a word of the given length may ever receive. Short
// words get fewer hints so a hint never gives the whole word away.
func kinds(length int) []Kind {
	switch {
	case length <= 0:
		return nil
	case length <= 2:
		return []Kind{KindFirstLetter}
	case length == 3:
		return []Kind{KindFirstLetter, KindLastLetter}
	default:
		return []Kind{KindFirstLetter, KindLastLetter, KindPattern}
	}
}

func (s Schedule) percent(k Kind) int {
	switch k {
	case KindFirstLetter:
		return s.FirstLetterAt
	case KindLastLetter:
		return s.LastLetterAt
	default:
		return s.PatternAt
	}
}

// threshold is the first elapsed second at which the hint is due. It is never
// zero so nothing is revealed the moment a turn starts.
func threshold(duration, pct int) int {
	t := (duration*pct + 99) / 100
	if t < 1 {
		t = 1
	}
	return t
}

// Due returns how many hints should be visible after elapsed seconds.
func (s Schedule) Due(duration, length, elapsed int) int {
	if duration <= 0 {
		return 0
	}
	n := 0
	for _, k := range kinds(length) {
		if elapsed < threshold(duration, s.percent(k)) {
			break
		}
		n++
	}
	return n
}

// Reveal returns the hints visible after elapsed seconds, in reveal order.
func (s Schedule) Reveal(word string, duration, elapsed int) []Hint {
	runes := []rune(word)
	due := s.Due(duration, len(runes), elapsed)
	out := make([]Hint, 0, due)
	for _, k := range kinds(len(runes))[:due] {
		out = append(out, Hint{Kind: k, Value: value(runes, k)})
	}
	return out
}

func value(runes []rune, k Kind) string {
	switch k {
	case KindFirstLetter:
		return string(runes[0])
	case KindLastLetter:
		return string(runes[len(runes)-1])
	default:
		return Mask(runes)
	}
}

// Mask hides every letter except the first and the last. Spaces and hyphens
// stay visible so multi-word answers keep their shape.
func Mask(runes []rune) string {
	out := make([]rune, len(runes))
	for i, r := range runes {
		switch {
		case i == 0, i == len(runes)-1, r == ' ', r == '-':
			out[i] = r
		default:
			out[i] = '_'
		}
	}
	return string(out)
}
