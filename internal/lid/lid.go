// Package lid generates literature identifiers of the form
// {year}-{surname}-{initials}-{hash}, e.g. 2017-vaswani-aiayn-a8c4. The hash
// suffix is derived from normalized metadata, so the same work always maps to
// the same LID on every node.
package lid

import (
	"crypto/md5"
	"crypto/sha256"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/litgraph/backend/internal/domain"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {}, "in": {},
	"on": {}, "at": {}, "to": {}, "for": {}, "of": {}, "with": {}, "by": {},
	"from": {}, "as": {}, "is": {}, "are": {}, "was": {}, "were": {}, "be": {},
	"been": {}, "being": {}, "have": {}, "has": {}, "had": {}, "do": {},
	"does": {}, "did": {}, "will": {}, "would": {}, "could": {}, "should": {},
	"may": {}, "might": {}, "must": {}, "can": {}, "shall": {},
}

var (
	wordRe    = regexp.MustCompile(`[a-zA-Z]+`)
	yearRe    = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	nonAlphaRe = regexp.MustCompile(`[^a-zA-Z]`)
	lidRe     = regexp.MustCompile(`^(\d{4}|unkn)-[a-z]{1,8}-[a-z]{3,5}-[a-f0-9]{4}$`)
	fallbackRe = regexp.MustCompile(`^lit-[a-f0-9]{12}$`)
)

// Generate builds the LID for a metadata record.
func Generate(md *domain.Metadata) string {
	year := yearPart(md)
	author := surnamePart(md)
	title := initialsPart(md.Title)
	if author == "" || title == "" {
		return fallback(md)
	}
	return fmt.Sprintf("%s-%s-%s-%s", year, author, title, hashSuffix(md, year))
}

// Valid reports whether a string matches either LID form.
func Valid(lid string) bool {
	return lidRe.MatchString(lid) || fallbackRe.MatchString(lid)
}

func yearPart(md *domain.Metadata) string {
	if md.Year > 0 {
		return strconv.Itoa(md.Year)
	}
	if m := yearRe.FindString(md.Title); m != "" {
		return m
	}
	return "unkn"
}

func surnamePart(md *domain.Metadata) string {
	if len(md.Authors) == 0 {
		return "noauthor"
	}
	parts := strings.Fields(md.Authors[0].Name)
	if len(parts) == 0 {
		return "noauthor"
	}
	surname := parts[len(parts)-1]
	surname = strings.ToLower(nonAlphaRe.ReplaceAllString(surname, ""))
	if surname == "" {
		return "noauthor"
	}
	if len(surname) > 8 {
		surname = surname[:8]
	}
	return surname
}

func initialsPart(title string) string {
	if title == "" {
		return "notitle"
	}
	words := wordRe.FindAllString(strings.ToLower(title), -1)

	var initials []byte
	for _, w := range words {
		if _, stop := stopWords[w]; stop || len(w) < 3 {
			continue
		}
		initials = append(initials, w[0])
		if len(initials) == 5 {
			break
		}
	}
	// Titles made of short or stop words fall back to every word.
	if len(initials) < 3 {
		initials = initials[:0]
		for _, w := range words {
			if len(w) < 2 {
				continue
			}
			initials = append(initials, w[0])
			if len(initials) == 5 {
				break
			}
		}
	}
	if len(initials) < 3 {
		return "title"
	}
	return string(initials)
}

// hashSuffix is the first 4 hex chars of SHA-256 over the normalized title,
// author surnames, and year. Deterministic so that concurrent workers racing
// on the same work derive the same LID and collapse in the alias claim.
func hashSuffix(md *domain.Metadata, year string) string {
	surnames := make([]string, 0, len(md.Authors))
	for _, a := range md.Authors {
		parts := strings.Fields(a.Name)
		if len(parts) == 0 {
			continue
		}
		surnames = append(surnames, strings.ToLower(nonAlphaRe.ReplaceAllString(parts[len(parts)-1], "")))
	}
	basis := normalizeTitle(md.Title) + "|" + strings.Join(surnames, ",") + "|" + year
	sum := sha256.Sum256([]byte(basis))
	return fmt.Sprintf("%x", sum[:2])
}

func normalizeTitle(title string) string {
	return strings.Join(wordRe.FindAllString(strings.ToLower(title), -1), " ")
}

func fallback(md *domain.Metadata) string {
	content := md.Title
	if content == "" {
		content = "unknown"
	}
	if md.Year > 0 {
		content += strconv.Itoa(md.Year)
	} else {
		content += "unknown"
	}
	for i, a := range md.Authors {
		if i == 3 {
			break
		}
		content += a.Name
	}
	sum := md5.Sum([]byte(content))
	return fmt.Sprintf("lit-%x", sum[:6])
}
