package builtin

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/c360studio/defcheck/rules"
)

// checkNotCircular is SAM-01: the begrip, or its plural, must not be used
// to define itself.
func checkNotCircular(in rules.Input) rules.Result {
	term := strings.ToLower(strings.Join(strings.Fields(in.Begrip), " "))
	if term == "" {
		return rules.Pass("geen begrip om te toetsen")
	}
	forms := []string{term, term + "en", term + "s"}
	if found := findTerms(in.Text, forms); len(found) > 0 {
		return failWith(
			fmt.Sprintf("definitie is circulair: het begrip %q komt voor in de definitie", in.Begrip),
			map[string]any{"found": found},
		)
	}
	return rules.Pass("definitie is niet circulair")
}

// organisationAcronyms are justice-sector organisations that belong in
// the context field, not in the definition text.
var organisationAcronyms = []string{"OM", "DJI", "KMAR", "IND", "CJIB", "RvdK", "NFI", "RvR"}

var organisationPhrases = []string{
	"justid",
	"openbaar ministerie",
	"in de context van",
	"binnen de context van",
	"binnen onze organisatie",
	"voor de organisatie",
}

// checkNoOrganisationContext is CON-01.
func checkNoOrganisationContext(in rules.Input) rules.Result {
	var found []string
	tokens := map[string]bool{}
	for _, w := range words(in.Text) {
		tokens[strings.TrimSuffix(w, ".")] = true
	}
	for _, acr := range organisationAcronyms {
		if tokens[acr] {
			found = append(found, acr)
		}
	}
	found = append(found, findTerms(in.Text, organisationPhrases)...)

	if len(found) > 0 {
		return failWith(
			fmt.Sprintf("definitie noemt de organisatiecontext expliciet: %s", strings.Join(found, ", ")),
			map[string]any{"found": found},
		)
	}
	return rules.Pass("definitie is contextneutraal geformuleerd")
}

var (
	vagueLegalRe    = regexp.MustCompile(`(?i)\b(de|deze|die) wet\b|\bwettelijke (bepalingen|regels|regeling|voorschriften)\b`)
	specificLegalRe = regexp.MustCompile(`\bWet [a-z]|\b[A-Z][a-z]*wet\b|(?i:\bartikel \d+|\bart\. ?\d+)`)
)

// checkSpecificLegalReference is JUR-01.
func checkSpecificLegalReference(in rules.Input) rules.Result {
	if vagueLegalRe.MatchString(in.Text) && !specificLegalRe.MatchString(in.Text) {
		return rules.Fail("definitie verwijst naar wetgeving zonder de regeling te benoemen")
	}
	return rules.Pass("verwijzingen naar wetgeving zijn specifiek of afwezig")
}

var looseArticleRe = regexp.MustCompile(`(?i)\bart \d+|\bartikel\.\s?\d+|\bart\.\d+`)

// checkArticleNotation is JUR-02.
func checkArticleNotation(in rules.Input) rules.Result {
	if m := looseArticleRe.FindString(in.Text); m != "" {
		return failWith(
			fmt.Sprintf("artikelverwijzing %q volgt de notatie 'artikel N' of 'art. N' niet", m),
			map[string]any{"found": m},
		)
	}
	return rules.Pass("artikelnotatie in orde")
}
