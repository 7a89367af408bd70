package registry

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Root locale with punctuation shifted to ignorable, so "a1.txt" sorts
// before "A.txt".
var sortLocale = language.Make("und-u-ka-shifted")

// A collator carries scratch buffers and is not safe for concurrent use.
func newCollator() *collate.Collator {
	return collate.New(sortLocale, collate.IgnoreCase)
}

// ComparePaths orders a and b case-insensitively by locale; paths the
// collator treats as equal fall back to byte order.
func ComparePaths(a, b string) int {
	return comparePaths(newCollator(), a, b)
}

func comparePaths(c *collate.Collator, a, b string) int {
	if r := c.CompareString(a, b); r != 0 {
		return r
	}
	return strings.Compare(a, b)
}

// SortRecords sorts records in place by ComparePaths.
func SortRecords(records []FileRecord) {
	c := newCollator()
	sort.SliceStable(records, func(i, j int) bool {
		return comparePaths(c, records[i].Path, records[j].Path) < 0
	})
}
