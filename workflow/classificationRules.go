package workflow

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"bitbucket.org/mmdatafocus/financeiro_backend/models"
)

// ChartNode is a fixed synthetic node of the normalized chart of accounts.
type ChartNode struct {
	Code   string
	Name   string
	Kind   models.AccountKind
	Parent *ChartNode
}

func (n ChartNode) Level() int {
	if n.Parent == nil {
		return 1
	}
	return n.Parent.Level() + 1
}

var (
	RootInflows  = ChartNode{Code: "1", Name: "RECEITAS", Kind: models.AccountKindInflow}
	RootOutflows = ChartNode{Code: "2", Name: "DESPESAS", Kind: models.AccountKindOutflow}

	OperatingInflows  = ChartNode{Code: "1.1", Name: "Receitas Operacionais", Kind: models.AccountKindInflow, Parent: &RootInflows}
	OperatingOutflows = ChartNode{Code: "2.1", Name: "Despesas Operacionais", Kind: models.AccountKindOutflow, Parent: &RootOutflows}
	Taxes             = ChartNode{Code: "2.2", Name: "Impostos", Kind: models.AccountKindOutflow, Parent: &RootOutflows}
	Payroll           = ChartNode{Code: "2.3", Name: "Folha de Pagamento", Kind: models.AccountKindOutflow, Parent: &RootOutflows}
)

// ClassificationRule routes a legacy account into Subgroup when its folded
// name contains one of Keywords. Keywords of up to four letters are acronyms
// and must match a whole word.
type ClassificationRule struct {
	Key       string
	Subgroup  *ChartNode
	AppliesTo models.AccountKind
	Keywords  []string
}

// DefaultRules are tested in order; the first match wins.
var DefaultRules = []ClassificationRule{
	{
		Key:       "impostos",
		Subgroup:  &Taxes,
		AppliesTo: models.AccountKindOutflow,
		Keywords: []string{
			"imposto", "tributo", "simples nacional", "icms", "pis", "cofins", "irpj", "csll",
			"iptu", "ipva", "iof", "darf", "issqn", "iss", "irrf",
		},
	},
	{
		Key:       "folha",
		Subgroup:  &Payroll,
		AppliesTo: models.AccountKindOutflow,
		Keywords: []string{
			"salario", "folha", "pro labore", "prolabore", "fgts", "inss", "ferias",
			"13o salario", "13 salario", "decimo terceiro", "rescisao",
			"vale transporte", "vale refeicao", "vale alimentacao",
		},
	},
}

// Classification is where a legacy account goes.
type Classification struct {
	Subgroup *ChartNode
	// Rule is empty for the operating fallback.
	Rule     string
	Fallback bool
}

// Classify applies rules in order and falls back to the operating subgroup of
// kind. ok is false when kind is not a known direction.
func Classify(rules []ClassificationRule, name string, kind models.AccountKind) (c Classification, ok bool) {
	if !kind.IsValid() {
		return Classification{}, false
	}
	folded := foldText(name)
	words := strings.Fields(folded)
	for _, rule := range rules {
		if rule.AppliesTo != kind {
			continue
		}
		for _, kw := range rule.Keywords {
			if keywordMatches(folded, words, kw) {
				return Classification{Subgroup: rule.Subgroup, Rule: rule.Key}, true
			}
		}
	}
	if kind == models.AccountKindInflow {
		return Classification{Subgroup: &OperatingInflows, Fallback: true}, true
	}
	return Classification{Subgroup: &OperatingOutflows, Fallback: true}, true
}

func keywordMatches(folded string, words []string, kw string) bool {
	kw = foldText(kw)
	if len(kw) > 4 {
		return strings.Contains(folded, kw)
	}
	for _, w := range words {
		if w == kw {
			return true
		}
	}
	return false
}

// foldText lower-cases, strips accents and turns punctuation, hyphens
// included, into spaces: "INSS-Patronal 13º" becomes "inss patronal 13o".
func foldText(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = strings.ToLower(out)
	out = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, out)
	return strings.Join(strings.Fields(out), " ")
}
