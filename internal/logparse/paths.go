package logparse

import (
	"regexp"
	"strconv"
	"strings"
)

// digitsRegex matches maximal runs of ASCII digits in a path.
var digitsRegex = regexp.MustCompile(`[0-9]+`)

// numberPlaceholder replaces each digit run when computing a path skeleton.
const numberPlaceholder = "\x00"

// sensitiveTokens are path fragments commonly probed by scanners.
var sensitiveTokens = []string{
	"admin",
	"login",
	"wp-admin",
	"config",
	".git",
	".env",
	"backup",
	"db",
	"api",
	"phpinfo",
	"phpmyadmin",
}

// IsSensitivePath reports whether path contains a sensitive fragment,
// case-insensitively.
func IsSensitivePath(path string) bool {
	p := strings.ToLower(path)
	for _, tok := range sensitiveTokens {
		if strings.Contains(p, tok) {
			return true
		}
	}
	return false
}

// Skeleton returns path with every digit run replaced by a placeholder,
// together with the parsed numbers in order. ok is false when a digit run
// does not fit in an int64.
func Skeleton(path string) (skeleton string, numbers []int64, ok bool) {
	runs := digitsRegex.FindAllString(path, -1)
	numbers = make([]int64, 0, len(runs))
	for _, run := range runs {
		n, err := strconv.ParseInt(run, 10, 64)
		if err != nil {
			return "", nil, false
		}
		numbers = append(numbers, n)
	}
	return digitsRegex.ReplaceAllString(path, numberPlaceholder), numbers, true
}

// IsSequentialStep reports whether next looks like prev with its numeric
// parts nudged forward or back: both share a non-empty set of numbers, the
// same skeleton, and every positional pair differs by at most maxStep.
func IsSequentialStep(prev, next string, maxStep int64) bool {
	skelA, numsA, okA := Skeleton(prev)
	skelB, numsB, okB := Skeleton(next)
	if !okA || !okB || skelA != skelB || len(numsA) == 0 || len(numsA) != len(numsB) {
		return false
	}
	for i := range numsA {
		d := numsB[i] - numsA[i]
		if d < 0 {
			d = -d
		}
		if d > maxStep {
			return false
		}
	}
	return true
}

// IsDirectChild reports whether child is exactly one path segment below
// parent, e.g. /docs -> /docs/intro.
func IsDirectChild(parent, child string) bool {
	base := strings.TrimRight(parent, "/")
	if base == "" {
		return false
	}
	suffix, ok := strings.CutPrefix(child, base+"/")
	if !ok || suffix == "" {
		return false
	}
	return !strings.Contains(suffix, "/")
}

// IsCrawlStep reports whether next follows prev in a sequential or
// hierarchical crawl.
func IsCrawlStep(prev, next string, maxStep int64) bool {
	return IsSequentialStep(prev, next, maxStep) || IsDirectChild(prev, next)
}
