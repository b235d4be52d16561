package normalize

import (
	"regexp"
	"strings"
)

// Street number derivation constants.
const (
	maxStreetNumber = 15000
	// nonNumericSentinel replaces upstream street "numbers" that are
	// non-empty but not numeric ("s/n", "km 4").
	nonNumericSentinel = 13
)

var digitRuns = regexp.MustCompile(`\d+`)

// complementNumbers extracts every embedded number from a zip-code
// complement string, e.g. "de 500 até 1200 - lado par" -> [500, 1200].
func complementNumbers(complement string) []int {
	matches := digitRuns.FindAllString(complement, -1)
	nums := make([]int, 0, len(matches))
	for _, m := range matches {
		n := 0
		for _, d := range m {
			n = n*10 + int(d-'0')
		}
		nums = append(nums, n)
	}
	return nums
}

// synthesizeStreetNumber derives a plausible street number from the zip-code
// complement text. Brazilian zip codes often map to a street range rather
// than a single address; the complement encodes that range:
//
//   - a wide min..max span picks a uniform value inside it;
//   - "fim" (from this number to the end) picks near the minimum;
//   - "até" (up to this number) picks below the maximum;
//   - no usable numbers defaults to 1.
func (c *Context) synthesizeStreetNumber(complement string) int {
	nums := complementNumbers(complement)
	if len(nums) == 0 {
		return 1
	}

	minNum, maxNum := nums[0], nums[0]
	for _, n := range nums[1:] {
		if n < minNum {
			minNum = n
		}
		if n > maxNum {
			maxNum = n
		}
	}

	switch {
	case maxNum-minNum > 10:
		return c.uniformInt(minNum, maxNum)
	case strings.Contains(complement, "fim"):
		return c.uniformInt(minNum, minNum+100)
	case strings.Contains(complement, "até"):
		return c.uniformInt(1, maxNum)
	default:
		return 1
	}
}

// uniformInt returns a uniformly distributed integer in [lo, hi].
func (c *Context) uniformInt(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + c.rng.Intn(hi-lo+1)
}
