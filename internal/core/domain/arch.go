package domain

import (
	"regexp"
	"slices"
	"strings"

	"go.trai.ch/zerr"
)

// DefaultArch is used when neither an override nor a local device is available.
// sm_75 is the oldest architecture every supported CUDA 12 and 13 toolkit can target.
const DefaultArch = "75"

var archPattern = regexp.MustCompile(`^[1-9][0-9]{1,2}[a-z]?$`)

// ArchSet is a sorted, deduplicated set of compute capability codes such as "75" or "90a".
type ArchSet []string

// ParseArch validates a single architecture code.
// It accepts the bare code ("86") as well as the "sm_86" and "compute_86" spellings.
func ParseArch(code string) (string, error) {
	c := strings.TrimSpace(code)
	c = strings.TrimPrefix(c, "sm_")
	c = strings.TrimPrefix(c, "compute_")
	if !archPattern.MatchString(c) {
		return "", zerr.With(ErrInvalidArch, "arch", code)
	}
	return c, nil
}

// NewArchSet validates every code and returns the normalized set.
func NewArchSet(codes []string) (ArchSet, error) {
	set := make(ArchSet, 0, len(codes))
	for _, code := range codes {
		c, err := ParseArch(code)
		if err != nil {
			return nil, err
		}
		set = append(set, c)
	}
	return normalize(set), nil
}

func normalize(set ArchSet) ArchSet {
	slices.SortFunc(set, compareArch)
	return slices.Compact(set)
}

// compareArch orders codes numerically, then by suffix, so "100" sorts after "90a".
func compareArch(a, b string) int {
	na, sa := splitArch(a)
	nb, sb := splitArch(b)
	if na != nb {
		if len(na) != len(nb) {
			return len(na) - len(nb)
		}
		return strings.Compare(na, nb)
	}
	return strings.Compare(sa, sb)
}

func splitArch(code string) (num, suffix string) {
	i := strings.IndexFunc(code, func(r rune) bool { return r < '0' || r > '9' })
	if i < 0 {
		return code, ""
	}
	return code[:i], code[i:]
}

// Equal reports whether both sets contain the same codes.
func (s ArchSet) Equal(other ArchSet) bool {
	return slices.Equal(s, other)
}

// Contains reports whether code is in the set.
func (s ArchSet) Contains(code string) bool {
	return slices.Contains(s, code)
}

// Lowest returns the oldest architecture in the set.
func (s ArchSet) Lowest() string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

// String joins the codes with commas.
func (s ArchSet) String() string {
	return strings.Join(s, ",")
}
