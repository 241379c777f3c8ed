package entity

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// legalSuffixes lists common legal entity suffixes to strip during name
// normalization. Order does not matter; at most one suffix is stripped.
var legalSuffixes = []string{
	" LLC", " L.L.C.", " L.L.C",
	" INC", " INC.", " INCORPORATED",
	" CORP", " CORP.", " CORPORATION",
	" LTD", " LTD.", " LIMITED",
	" LP", " L.P.", " L.P",
	" LLP", " L.L.P.", " L.L.P",
	" PLC", " P.L.C.",
	" CO", " CO.",
	" GMBH", " S.A.", " SA", " A.G.", " AG",
	" ASBL", " E.V.", " EV",
	" SOCIETY", " ASSOCIATION",
	" NPO", " NFP",
}

var multiSpaceRe = regexp.MustCompile(`\s{2,}`)

// diacriticStripper removes combining marks after NFD decomposition, so
// names recorded in different jurisdictions compare on their base letters.
var diacriticStripper = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// NormalizeName standardizes an entity name for matching:
//  1. Trim and uppercase
//  2. Fold diacritics to base letters
//  3. Strip one trailing legal suffix (LLC, Inc, Corp, GmbH, ...)
//  4. Strip punctuation; "&" becomes AND
//  5. Collapse runs of whitespace
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	if folded, _, err := transform.String(diacriticStripper, name); err == nil {
		name = folded
	}

	name = strings.ToUpper(name)

	for _, suffix := range legalSuffixes {
		if strings.HasSuffix(name, suffix) {
			name = strings.TrimSuffix(name, suffix)
			break
		}
	}

	name = strings.NewReplacer(
		",", "",
		".", "",
		"'", "",
		"\"", "",
		"&", "AND",
		"-", " ",
		"(", "",
		")", "",
	).Replace(name)

	name = multiSpaceRe.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

// NormalizePostal canonicalizes a postal code: uppercase, no spaces.
func NormalizePostal(code string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), " ", ""))
}

// PostalPrefix returns the forward-sortation-area style prefix (first three
// characters of the normalized code), or "" when the code is shorter.
func PostalPrefix(code string) string {
	n := NormalizePostal(code)
	if len(n) < 3 {
		return ""
	}
	return n[:3]
}
