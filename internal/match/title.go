// Package match implements the title and author similarity used by
// deduplication and citation linking.
package match

import (
	"crypto/md5"
	"crypto/sha256"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/xrash/smetrics"
)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {}, "in": {},
	"on": {}, "at": {}, "to": {}, "for": {}, "of": {}, "with": {}, "by": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {},
	"being": {}, "from": {}, "up": {}, "about": {}, "into": {}, "through": {},
	"during": {}, "before": {}, "after": {}, "above": {}, "below": {},
	"between": {}, "among": {}, "under": {}, "over": {},
}

var (
	nonAlnumRe = regexp.MustCompile(`[^a-z0-9\s]`)
	spacesRe   = regexp.MustCompile(`\s+`)
	letterRe   = regexp.MustCompile(`[^a-z]`)
)

// NormalizeTitle lowercases, strips punctuation, and collapses whitespace.
// Two titles that normalize identically are treated as the same work.
func NormalizeTitle(title string) string {
	normalized := strings.ToLower(title)
	normalized = nonAlnumRe.ReplaceAllString(normalized, "")
	normalized = spacesRe.ReplaceAllString(normalized, " ")
	return strings.TrimSpace(normalized)
}

// ExactMatch reports whether two titles normalize to the same non-empty
// string.
func ExactMatch(a, b string) bool {
	na := NormalizeTitle(a)
	return na != "" && na == NormalizeTitle(b)
}

// titleWords returns the significant tokens of a normalized title.
func titleWords(normalized string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range strings.Fields(normalized) {
		if len(w) < 2 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		words[w] = struct{}{}
	}
	return words
}

// TokenOverlap is the Jaccard similarity of the significant word sets.
func TokenOverlap(a, b string) float64 {
	wa := titleWords(NormalizeTitle(a))
	wb := titleWords(NormalizeTitle(b))
	if len(wa) == 0 && len(wb) == 0 {
		return 1.0
	}
	if len(wa) == 0 || len(wb) == 0 {
		return 0.0
	}
	intersection := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			intersection++
		}
	}
	union := len(wa) + len(wb) - intersection
	return float64(intersection) / float64(union)
}

// LCSRatio is the longest-common-subsequence length of the normalized titles
// over the longer length. Catches word-order changes that token overlap
// alone cannot score.
func LCSRatio(a, b string) float64 {
	na := NormalizeTitle(a)
	nb := NormalizeTitle(b)
	if na == "" && nb == "" {
		return 1.0
	}
	if na == "" || nb == "" {
		return 0.0
	}
	longest := len(na)
	if len(nb) > longest {
		longest = len(nb)
	}
	return float64(lcsLength(na, nb)) / float64(longest)
}

func lcsLength(a, b string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// TitleSimilarity is the composite score: token overlap weighted 70%, LCS
// ratio 30%.
func TitleSimilarity(a, b string) float64 {
	score := 0.7*TokenOverlap(a, b) + 0.3*LCSRatio(a, b)
	if score > 1.0 {
		return 1.0
	}
	return score
}

// LastName extracts and normalizes the surname token of a full name.
func LastName(fullName string) string {
	parts := strings.Fields(fullName)
	if len(parts) == 0 {
		return ""
	}
	return letterRe.ReplaceAllString(strings.ToLower(parts[len(parts)-1]), "")
}

// AuthorsMatch compares two author lists by surname. A pair matches when
// Jaro-Winkler similarity reaches simThreshold; the lists match when at
// least rate of the shorter list finds a partner. Empty lists never veto.
func AuthorsMatch(a, b []string, simThreshold, rate float64) bool {
	surA := lastNames(a)
	surB := lastNames(b)
	if len(surA) == 0 || len(surB) == 0 {
		return true
	}
	shorter, longer := surA, surB
	if len(surB) < len(surA) {
		shorter, longer = surB, surA
	}
	matched := 0
	for _, s := range shorter {
		for _, l := range longer {
			if smetrics.JaroWinkler(s, l, 0.7, 4) >= simThreshold {
				matched++
				break
			}
		}
	}
	return float64(matched)/float64(len(shorter)) >= rate
}

func lastNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if ln := LastName(n); ln != "" {
			out = append(out, ln)
		}
	}
	return out
}

// TitleFingerprint is the content-addressed identity used by phase-4 dedup:
// SHA-256 over the normalized title, the sorted normalized surnames, and the
// year.
func TitleFingerprint(title string, authors []string, year int) string {
	surnames := lastNames(authors)
	sort.Strings(surnames)
	basis := fmt.Sprintf("%s|%s|%d", NormalizeTitle(title), strings.Join(surnames, ","), year)
	sum := sha256.Sum256([]byte(basis))
	return fmt.Sprintf("%x", sum)
}

// UnresolvedID derives a stable placeholder id from a reference title, so the
// same cited-but-unknown work collapses to one node across papers.
func UnresolvedID(title string) string {
	normalized := NormalizeTitle(title)
	if normalized == "" {
		return ""
	}
	sum := md5.Sum([]byte(normalized))
	return fmt.Sprintf("unresolved-%x", sum[:4])
}
