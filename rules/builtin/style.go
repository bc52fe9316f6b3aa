package builtin

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/c360studio/defcheck/rules"
)

var openEnumerations = []string{"bijvoorbeeld", "zoals", "bv", "etc", "enz", "enzovoort", "en/of"}

// checkNoOpenEnumeration is VER-01.
func checkNoOpenEnumeration(in rules.Input) rules.Result {
	if found := findTerms(in.Text, openEnumerations); len(found) > 0 {
		return failWith(
			fmt.Sprintf("definitie bevat voorbeelden of open opsommingen: %s", strings.Join(found, ", ")),
			map[string]any{"found": found},
		)
	}
	return rules.Pass("geen open opsommingen")
}

var vagueTerms = []string{
	"vaak", "soms", "meestal", "doorgaans", "belangrijk", "belangrijke",
	"goed", "goede", "adequaat", "adequate", "voldoende", "relevant",
	"relevante", "passend", "passende",
}

// checkNoVagueTerms is VER-02. Each vague term costs a third of the score.
func checkNoVagueTerms(in rules.Input) rules.Result {
	found := findTerms(in.Text, vagueTerms)
	if len(found) == 0 {
		return rules.Pass("geen vage of subjectieve termen")
	}
	res := rules.Graded(1-float64(len(found))/3, 1,
		fmt.Sprintf("definitie bevat vage termen: %s", strings.Join(found, ", ")))
	res.Details = map[string]any{"found": found}
	return res
}

var (
	generatorPrefixes = []string{"definitie:", "hier is", "als ai", "als taalmodel", "zeker,", "natuurlijk,"}
	markdownRe        = regexp.MustCompile(`\*\*|__|^#+\s|(?m)^\s*[-*]\s+`)
)

// checkNoGeneratorArtifacts is ARAI-01: leftovers from text generation.
func checkNoGeneratorArtifacts(in rules.Input) rules.Result {
	text := normalized(in.Text)
	for _, p := range generatorPrefixes {
		if strings.HasPrefix(text, p) {
			return failWith(fmt.Sprintf("definitie begint met generatietekst %q", p), map[string]any{"prefix": p})
		}
	}
	if markdownRe.MatchString(in.Text) {
		return rules.Fail("definitie bevat opmaak (markdown)")
	}
	trimmed := strings.TrimSpace(in.Text)
	if len(trimmed) > 1 && strings.IndexAny(trimmed, `"'“`) == 0 {
		return rules.Fail("definitie staat tussen aanhalingstekens")
	}
	return rules.Pass("geen generatie-artefacten")
}

var hedges = []string{"mogelijk", "waarschijnlijk", "kan worden gezien als", "zou kunnen", "over het algemeen", "in principe"}

// checkNoHedging is ARAI-02.
func checkNoHedging(in rules.Input) rules.Result {
	if found := findTerms(in.Text, hedges); len(found) > 0 {
		return failWith(
			fmt.Sprintf("definitie bevat voorbehouden: %s", strings.Join(found, ", ")),
			map[string]any{"found": found},
		)
	}
	return rules.Pass("geen voorbehouden")
}

// checkAbbreviationsExplained is TAAL-01: an all-caps abbreviation must be
// written out once, as "uitgeschreven (AFK)" or "AFK (uitgeschreven)".
func checkAbbreviationsExplained(in rules.Input) rules.Result {
	var unexplained []string
	seen := map[string]bool{}
	for _, w := range words(in.Text) {
		w = strings.TrimSuffix(w, ".")
		if !isAbbreviation(w) || seen[w] {
			continue
		}
		seen[w] = true
		if !strings.Contains(in.Text, "("+w+")") && !strings.Contains(in.Text, w+" (") {
			unexplained = append(unexplained, w)
		}
	}
	if len(unexplained) > 0 {
		return failWith(
			fmt.Sprintf("afkortingen zonder toelichting: %s", strings.Join(unexplained, ", ")),
			map[string]any{"abbreviations": unexplained},
		)
	}
	return rules.Pass("afkortingen zijn toegelicht of afwezig")
}

func isAbbreviation(w string) bool {
	letters := 0
	for _, r := range w {
		if unicode.IsLetter(r) {
			if !unicode.IsUpper(r) {
				return false
			}
			letters++
		}
	}
	return letters >= 2
}

var personalPronouns = []string{"ik", "wij", "we", "u", "je", "jij", "jullie", "ons", "onze", "mijn"}

// checkObjectiveRegister is TAAL-02.
func checkObjectiveRegister(in rules.Input) rules.Result {
	if found := findTerms(in.Text, personalPronouns); len(found) > 0 {
		return failWith(
			fmt.Sprintf("definitie is niet objectief geformuleerd: %s", strings.Join(found, ", ")),
			map[string]any{"found": found},
		)
	}
	return rules.Pass("objectief geformuleerd")
}
