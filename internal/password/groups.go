package password

import "strings"

// Group is one character class of the policy, e.g. "A-Za-z0-9".
type Group struct {
	Source string
	ranges []runeRange
}

type runeRange struct{ lo, hi rune }

// ParseGroups splits a pipe separated policy. "\|" stands for a literal
// pipe. Blank groups are ignored.
func ParseGroups(spec string) []Group {
	spec = strings.ReplaceAll(spec, `\|`, "\t")
	var groups []Group
	for _, part := range strings.Split(spec, "|") {
		part = strings.TrimSpace(strings.ReplaceAll(part, "\t", "|"))
		if part == "" {
			continue
		}
		groups = append(groups, Group{Source: part, ranges: parseClass(part)})
	}
	return groups
}

// parseClass reads a-z style ranges whose ends are both digits, both
// lowercase or both uppercase ASCII letters; every other rune is literal.
func parseClass(class string) []runeRange {
	runes := []rune(class)
	var out []runeRange
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if i+2 < len(runes) && runes[i+1] == '-' && sameKind(r, runes[i+2]) && r <= runes[i+2] {
			out = append(out, runeRange{lo: r, hi: runes[i+2]})
			i += 2
			continue
		}
		out = append(out, runeRange{lo: r, hi: r})
	}
	return out
}

func sameKind(a, b rune) bool {
	switch {
	case '0' <= a && a <= '9':
		return '0' <= b && b <= '9'
	case 'a' <= a && a <= 'z':
		return 'a' <= b && b <= 'z'
	case 'A' <= a && a <= 'Z':
		return 'A' <= b && b <= 'Z'
	}
	return false
}

// Contains reports whether r belongs to the group.
func (g Group) Contains(r rune) bool {
	for _, rr := range g.ranges {
		if rr.lo <= r && r <= rr.hi {
			return true
		}
	}
	return false
}

func (g Group) matchesAny(s string) bool {
	for _, r := range s {
		if g.Contains(r) {
			return true
		}
	}
	return false
}
