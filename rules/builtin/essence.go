package builtin

import (
	"fmt"
	"strings"

	"github.com/c360studio/defcheck/contract"
	"github.com/c360studio/defcheck/rules"
)

// purposeOpeners mark a definition that states a goal instead of what the
// begrip is.
var purposeOpeners = []string{
	"om ",
	"met als doel",
	"met het doel",
	"bedoeld om",
	"bedoeld voor",
	"teneinde",
	"zodat",
	"ten behoeve van",
	"dient om",
	"dient ertoe",
}

// checkDescribesWhatNotWhy is ESS-01.
func checkDescribesWhatNotWhy(in rules.Input) rules.Result {
	text := normalized(in.Text)
	for _, opener := range purposeOpeners {
		if strings.HasPrefix(text, opener) {
			return failWith(
				fmt.Sprintf("definitie beschrijft een doel (%q) in plaats van wat %s is", strings.TrimSpace(opener), in.Begrip),
				map[string]any{"opener": strings.TrimSpace(opener)},
			)
		}
	}
	return rules.Pass("definitie beschrijft wat het begrip is")
}

// ontologicalMarkers are the words that signal each ontological category.
var ontologicalMarkers = map[contract.OntologicalCategory][]string{
	contract.CategoryProces: {
		"proces", "activiteit", "handeling", "werkwijze", "procedure",
		"waarbij", "het uitvoeren", "het vaststellen", "het beoordelen",
	},
	contract.CategoryType: {
		"soort", "categorie", "type", "klasse", "vorm", "geheel",
		"verzameling", "persoon", "instantie", "object",
	},
	contract.CategoryResultaat: {
		"resultaat", "uitkomst", "product", "besluit", "verklaring",
		"document", "opbrengst", "gevolg", "beslissing", "vastlegging",
	},
	contract.CategoryExemplaar: {
		"specifiek", "specifieke", "concreet", "concrete", "bepaald",
		"bepaalde", "exemplaar", "individueel", "individuele", "eenmalig",
	},
}

// checkOntologicalMarker is ESS-02.
func checkOntologicalMarker(in rules.Input) rules.Result {
	if in.OntologicalCategory == "" {
		return rules.Pass("geen ontologische categorie opgegeven")
	}
	markers, ok := ontologicalMarkers[in.OntologicalCategory]
	if !ok {
		return rules.Pass("onbekende ontologische categorie, niet getoetst")
	}
	found := findTerms(in.Text, markers)
	if len(found) == 0 {
		return failWith(
			fmt.Sprintf("definitie bevat geen kenmerk van categorie %q", in.OntologicalCategory),
			map[string]any{"expected_any": markers},
		)
	}
	res := rules.Pass(fmt.Sprintf("categorie %q herkend", in.OntologicalCategory))
	res.Details = map[string]any{"markers": found}
	return res
}
