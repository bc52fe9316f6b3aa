package builtin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/defcheck/contract"
	"github.com/c360studio/defcheck/rules"
)

const goodDefinition = "Proces waarbij identiteitsgegevens systematisch worden gecontroleerd tegen authentieke bronregistraties"

func TestAll_CodesUniqueAndSorted(t *testing.T) {
	all := All()
	require.Len(t, all, 17)

	seen := map[string]bool{}
	for i, r := range all {
		assert.False(t, seen[r.Code()], "duplicate code %s", r.Code())
		seen[r.Code()] = true
		if i > 0 {
			assert.Less(t, all[i-1].Code(), r.Code())
		}
	}
}

func TestRegister(t *testing.T) {
	reg := rules.NewRegistry()
	require.NoError(t, Register(reg))
	assert.Equal(t, len(All()), reg.Len())

	err := Register(reg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "register builtin")
}

func TestGoodDefinitionPassesEveryRule(t *testing.T) {
	in := rules.Input{
		Begrip:              "verificatie",
		Text:                goodDefinition,
		OntologicalCategory: contract.CategoryProces,
	}
	for _, r := range All() {
		res, err := r.Evaluate(context.Background(), in)
		require.NoError(t, err)
		assert.True(t, res.Passed, "%s: %s", r.Code(), res.Message)
		assert.Equal(t, 1.0, res.Score, r.Code())
	}
}

func TestCheck_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := All()[0].Evaluate(ctx, rules.Input{Text: goodDefinition})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChecks(t *testing.T) {
	tests := []struct {
		name   string
		fn     func(rules.Input) rules.Result
		in     rules.Input
		passed bool
	}{
		{"ARAI-01 prefix", checkNoGeneratorArtifacts, rules.Input{Text: "Definitie: proces waarbij iets gebeurt"}, false},
		{"ARAI-01 markdown", checkNoGeneratorArtifacts, rules.Input{Text: "**Proces** waarbij iets gebeurt"}, false},
		{"ARAI-01 quoted", checkNoGeneratorArtifacts, rules.Input{Text: `"Proces waarbij iets gebeurt"`}, false},
		{"ARAI-01 clean", checkNoGeneratorArtifacts, rules.Input{Text: goodDefinition}, true},

		{"ARAI-02 hedge", checkNoHedging, rules.Input{Text: "Proces dat mogelijk leidt tot een besluit"}, false},
		{"ARAI-02 phrase", checkNoHedging, rules.Input{Text: "Handeling die over het algemeen wordt uitgevoerd"}, false},

		{"CON-01 acronym", checkNoOrganisationContext, rules.Input{Text: "Besluit van het OM over vervolging"}, false},
		{"CON-01 phrase", checkNoOrganisationContext, rules.Input{Text: "Proces binnen de context van strafrecht"}, false},
		{"CON-01 lowercase om is not an acronym", checkNoOrganisationContext, rules.Input{Text: "Handeling om gegevens vast te leggen"}, true},

		{"ESS-01 purpose", checkDescribesWhatNotWhy, rules.Input{Begrip: "toets", Text: "Om te bepalen of iemand bevoegd is"}, false},
		{"ESS-01 what", checkDescribesWhatNotWhy, rules.Input{Text: goodDefinition}, true},

		{"ESS-02 missing marker", checkOntologicalMarker, rules.Input{Text: "Controle van gegevens", OntologicalCategory: contract.CategoryResultaat}, false},
		{"ESS-02 marker present", checkOntologicalMarker, rules.Input{Text: "Besluit over een aanvraag", OntologicalCategory: contract.CategoryResultaat}, true},
		{"ESS-02 no category", checkOntologicalMarker, rules.Input{Text: "Controle van gegevens"}, true},

		{"INT-01 two sentences", checkSingleSentence, rules.Input{Text: "Proces van controle. Het wordt dagelijks uitgevoerd"}, false},
		{"INT-01 semicolon", checkSingleSentence, rules.Input{Text: "Proces van controle; dagelijks uitgevoerd"}, false},
		{"INT-01 abbreviation", checkSingleSentence, rules.Input{Text: "Proces volgens art. 12 van de regeling"}, true},

		{"INT-02 negative opener", checkNotNegative, rules.Input{Text: "Geen besluit over de aanvraag"}, false},
		{"INT-02 is niet", checkNotNegative, rules.Input{Text: "Handeling die is niet toegestaan"}, false},

		{"JUR-01 vague", checkSpecificLegalReference, rules.Input{Text: "Besluit op grond van de wet"}, false},
		{"JUR-01 specific", checkSpecificLegalReference, rules.Input{Text: "Besluit op grond van de wet, artikel 3 Vreemdelingenwet"}, true},
		{"JUR-01 none", checkSpecificLegalReference, rules.Input{Text: goodDefinition}, true},

		{"JUR-02 loose", checkArticleNotation, rules.Input{Text: "Besluit volgens art 12 Opiumwet"}, false},
		{"JUR-02 no space", checkArticleNotation, rules.Input{Text: "Besluit volgens art.12 Opiumwet"}, false},
		{"JUR-02 proper", checkArticleNotation, rules.Input{Text: "Besluit volgens artikel 12 Opiumwet"}, true},

		{"SAM-01 circular", checkNotCircular, rules.Input{Begrip: "Toets", Text: "Handeling waarbij een toets wordt afgenomen"}, false},
		{"SAM-01 plural", checkNotCircular, rules.Input{Begrip: "toets", Text: "Reeks van toetsen"}, false},
		{"SAM-01 clean", checkNotCircular, rules.Input{Begrip: "verificatie", Text: goodDefinition}, true},

		{"STR-01 article", checkStartsWithNoun, rules.Input{Text: "De controle van gegevens"}, false},
		{"STR-01 copula", checkStartsWithNoun, rules.Input{Text: "Is een controle"}, false},
		{"STR-01 empty", checkStartsWithNoun, rules.Input{Text: "   "}, false},

		{"STR-02 too short", checkLength, rules.Input{Text: "Controle van gegevens"}, false},
		{"STR-02 ok", checkLength, rules.Input{Text: goodDefinition}, true},

		{"STR-03 period", checkNoTrailingPeriod, rules.Input{Text: goodDefinition + "."}, false},

		{"TAAL-01 unexplained", checkAbbreviationsExplained, rules.Input{Text: "Registratie in de BRP van een persoon"}, false},
		{"TAAL-01 explained after", checkAbbreviationsExplained, rules.Input{Text: "Registratie in de basisregistratie personen (BRP)"}, true},
		{"TAAL-01 explained before", checkAbbreviationsExplained, rules.Input{Text: "Registratie in de BRP (basisregistratie personen)"}, true},

		{"TAAL-02 pronoun", checkObjectiveRegister, rules.Input{Text: "Proces waarbij wij gegevens controleren"}, false},

		{"VER-01 example", checkNoOpenEnumeration, rules.Input{Text: "Documenten zoals paspoorten en rijbewijzen"}, false},
		{"VER-01 etc", checkNoOpenEnumeration, rules.Input{Text: "Paspoorten, rijbewijzen, etc."}, false},
		{"VER-01 en/of", checkNoOpenEnumeration, rules.Input{Text: "Paspoort en/of rijbewijs"}, false},

		{"VER-02 vague", checkNoVagueTerms, rules.Input{Text: "Voldoende controle van gegevens"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := tt.fn(tt.in)
			assert.Equal(t, tt.passed, res.Passed, res.Message)
			assert.NotEmpty(t, res.Message)
			if tt.passed {
				assert.Equal(t, 1.0, res.Score)
			} else {
				assert.Less(t, res.Score, 1.0)
			}
		})
	}
}

func TestCheckLength_Graded(t *testing.T) {
	res := checkLength(rules.Input{Text: "een twee drie"})
	assert.False(t, res.Passed)
	assert.InDelta(t, 0.5, res.Score, 1e-9)
	assert.Equal(t, 3, res.Details["words"])
}

func TestCheckNoVagueTerms_Graded(t *testing.T) {
	one := checkNoVagueTerms(rules.Input{Text: "Voldoende controle"})
	two := checkNoVagueTerms(rules.Input{Text: "Voldoende en adequaat controle"})
	four := checkNoVagueTerms(rules.Input{Text: "Vaak soms goed voldoende"})

	assert.InDelta(t, 2.0/3, one.Score, 1e-9)
	assert.InDelta(t, 1.0/3, two.Score, 1e-9)
	assert.Equal(t, 0.0, four.Score)
}

func TestFindTerms(t *testing.T) {
	assert.Equal(t, []string{"etc"}, findTerms("a, b, etc.", []string{"etc"}))
	assert.Equal(t, []string{"over het algemeen"}, findTerms("Over het  algemeen goed", []string{"over het algemeen"}))
	assert.Empty(t, findTerms("goederen", []string{"goed"}))
}
