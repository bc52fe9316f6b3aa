package builtin

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/c360studio/defcheck/rules"
)

// Word count bounds for a readable definition.
const (
	minWords = 6
	maxWords = 60
)

// nonNounOpeners are words a definition must not start with: articles,
// copulas and conjunctions.
var nonNounOpeners = map[string]bool{
	"de": true, "het": true, "een": true,
	"is": true, "zijn": true, "wordt": true, "worden": true,
	"betreft": true, "betekent": true, "omvat": true, "houdt": true,
	"indien": true, "als": true, "wanneer": true, "om": true,
	"dat": true, "die": true, "deze": true, "dit": true,
}

// checkStartsWithNoun is STR-01.
func checkStartsWithNoun(in rules.Input) rules.Result {
	first := firstWord(in.Text)
	if first == "" {
		return rules.Fail("definitie bevat geen woorden")
	}
	if nonNounOpeners[first] {
		return failWith(
			fmt.Sprintf("definitie begint met %q in plaats van met een zelfstandig naamwoord", first),
			map[string]any{"first_word": first},
		)
	}
	return rules.Pass("definitie begint met een kernwoord")
}

// checkLength is STR-02. The score degrades linearly outside the bounds.
func checkLength(in rules.Input) rules.Result {
	n := len(words(in.Text))
	details := map[string]any{"words": n, "min": minWords, "max": maxWords}

	var res rules.Result
	switch {
	case n < minWords:
		res = rules.Graded(float64(n)/minWords, 1, fmt.Sprintf("definitie is te kort (%d woorden, minimaal %d)", n, minWords))
	case n > maxWords:
		res = rules.Graded(1-float64(n-maxWords)/maxWords, 1, fmt.Sprintf("definitie is te lang (%d woorden, maximaal %d)", n, maxWords))
	default:
		res = rules.Pass(fmt.Sprintf("lengte in orde (%d woorden)", n))
	}
	res.Details = details
	return res
}

// checkNoTrailingPeriod is STR-03.
func checkNoTrailingPeriod(in rules.Input) rules.Result {
	if strings.HasSuffix(strings.TrimSpace(in.Text), ".") {
		return rules.Fail("definitie eindigt met een punt")
	}
	return rules.Pass("geen afsluitende punt")
}

// sentenceBreakRe finds a sentence end followed by a new sentence.
var sentenceBreakRe = regexp.MustCompile(`[.!?]\s+\p{Lu}|;`)

// checkSingleSentence is INT-01.
func checkSingleSentence(in rules.Input) rules.Result {
	breaks := sentenceBreakRe.FindAllStringIndex(strings.TrimSpace(in.Text), -1)
	if len(breaks) > 0 {
		return failWith(
			fmt.Sprintf("definitie bestaat uit %d zinnen, verwacht wordt één zin", len(breaks)+1),
			map[string]any{"sentences": len(breaks) + 1},
		)
	}
	return rules.Pass("definitie is één zin")
}

var negativeOpeners = map[string]bool{"geen": true, "niet": true, "zonder": true}

// checkNotNegative is INT-02.
func checkNotNegative(in rules.Input) rules.Result {
	if negativeOpeners[firstWord(in.Text)] {
		return rules.Fail("definitie is negatief geformuleerd")
	}
	if found := findTerms(in.Text, []string{"is niet", "zijn niet", "valt niet"}); len(found) > 0 {
		return failWith("definitie omschrijft wat het begrip niet is", map[string]any{"found": found})
	}
	return rules.Pass("definitie is positief geformuleerd")
}
