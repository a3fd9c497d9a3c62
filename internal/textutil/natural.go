package textutil

import (
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// NaturalLess orders strings so that embedded numbers compare by value
// ("obj_2" before "obj_10"). Letters compare case-insensitively.
func NaturalLess(a, b string) bool {
	ca, cb := chunks(a), chunks(b)
	for i := 0; i < len(ca) && i < len(cb); i++ {
		x, y := ca[i], cb[i]
		if x.numeric && y.numeric {
			if x.value != y.value {
				return x.value < y.value
			}
			continue
		}
		if x.numeric != y.numeric {
			return x.numeric
		}
		if x.text != y.text {
			return x.text < y.text
		}
	}
	if len(ca) != len(cb) {
		return len(ca) < len(cb)
	}
	return a < b
}

// SortNatural sorts values in place using NaturalLess.
func SortNatural(values []string) {
	sort.SliceStable(values, func(i, j int) bool { return NaturalLess(values[i], values[j]) })
}

type chunk struct {
	text    string
	value   uint64
	numeric bool
}

func chunks(s string) []chunk {
	var out []chunk
	for len(s) > 0 {
		digits := unicode.IsDigit(rune(s[0]))
		end := 1
		for end < len(s) && unicode.IsDigit(rune(s[end])) == digits {
			end++
		}
		part := s[:end]
		s = s[end:]
		if digits {
			value, err := strconv.ParseUint(part, 10, 64)
			if err == nil {
				out = append(out, chunk{text: part, value: value, numeric: true})
				continue
			}
		}
		out = append(out, chunk{text: strings.ToLower(part)})
	}
	return out
}
