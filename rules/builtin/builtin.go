// Package builtin provides the built-in quality rules for Dutch
// justice-sector term definitions. Rules are plain values registered
// explicitly at the composition root.
package builtin

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/c360studio/defcheck/rules"
)

// check is a rule backed by a pure function over the input.
type check struct {
	code string
	fn   func(in rules.Input) rules.Result
}

func (c check) Code() string { return c.code }

func (c check) Evaluate(ctx context.Context, in rules.Input) (rules.Result, error) {
	if err := ctx.Err(); err != nil {
		return rules.Result{}, err
	}
	return c.fn(in), nil
}

// All returns every built-in rule in code order.
func All() []rules.Rule {
	return []rules.Rule{
		check{"ARAI-01", checkNoGeneratorArtifacts},
		check{"ARAI-02", checkNoHedging},
		check{"CON-01", checkNoOrganisationContext},
		check{"ESS-01", checkDescribesWhatNotWhy},
		check{"ESS-02", checkOntologicalMarker},
		check{"INT-01", checkSingleSentence},
		check{"INT-02", checkNotNegative},
		check{"JUR-01", checkSpecificLegalReference},
		check{"JUR-02", checkArticleNotation},
		check{"SAM-01", checkNotCircular},
		check{"STR-01", checkStartsWithNoun},
		check{"STR-02", checkLength},
		check{"STR-03", checkNoTrailingPeriod},
		check{"TAAL-01", checkAbbreviationsExplained},
		check{"TAAL-02", checkObjectiveRegister},
		check{"VER-01", checkNoOpenEnumeration},
		check{"VER-02", checkNoVagueTerms},
	}
}

// Register adds all built-in rules to reg.
func Register(reg *rules.Registry) error {
	for _, r := range All() {
		if err := reg.Register(r); err != nil {
			return fmt.Errorf("register builtin %s: %w", r.Code(), err)
		}
	}
	return nil
}

// wordRe splits text into word tokens, keeping hyphenated compounds and
// slash constructions such as en/of together.
var wordRe = regexp.MustCompile(`[\p{L}\p{N}]+(?:[-/][\p{L}\p{N}]+)*\.?`)

func words(text string) []string {
	return wordRe.FindAllString(text, -1)
}

func normalized(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// findTerms returns the terms from list that occur in text as whole words
// or phrases, case-insensitively, in list order.
func findTerms(text string, list []string) []string {
	padded := " " + strings.Join(lowerTokens(text), " ") + " "
	var found []string
	for _, term := range list {
		if strings.Contains(padded, " "+term+" ") {
			found = append(found, term)
		}
	}
	return found
}

func lowerTokens(text string) []string {
	ws := words(text)
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = strings.ToLower(strings.TrimSuffix(w, "."))
	}
	return out
}

func firstWord(text string) string {
	ws := words(text)
	if len(ws) == 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSuffix(ws[0], "."))
}

func failWith(message string, details map[string]any) rules.Result {
	res := rules.Fail(message)
	res.Details = details
	return res
}
