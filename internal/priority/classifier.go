// Package priority infers ticket priority from the ticket text and category.
//
// The classifier is a fixed, ordered rule list. Each rule maps a keyword or phrase to an
// impact or urgency level. Rules are evaluated once per call, most specific first, and a
// phrase that matched is removed from the text so that shorter rules cannot match inside it
// ("pas urgent" never also counts as "urgent"). Each dimension keeps the highest level among
// its matched rules; unmatched dimensions fall back to a default. The priority is then read
// from a fixed impact x urgency table.
package priority

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/helpdeskhq/support-desk/internal/domain"
	apperrors "github.com/helpdeskhq/support-desk/pkg/util"
)

// Dimension names the axis a rule contributes to.
type Dimension string

const (
	DimensionImpact  Dimension = "impact"
	DimensionUrgency Dimension = "urgency"
)

// Classification is the outcome of Classify.
type Classification struct {
	Priority        domain.TicketPriority `json:"priority"`
	Impact          domain.Level          `json:"impact"`
	Urgency         domain.Level          `json:"urgency"`
	MatchedKeywords []string              `json:"matched_keywords"`
}

// Rule maps a keyword literal to a level on one dimension.
type Rule struct {
	Keyword   string
	Dimension Dimension
	Level     domain.Level
}

// Rules is evaluated top to bottom. Phrases and negations come before the single
// words they contain.
var Rules = []Rule{
	// urgency: negations and phrases
	{"pas urgent", DimensionUrgency, domain.LevelLow},
	{"not urgent", DimensionUrgency, domain.LevelLow},
	{"pas pressé", DimensionUrgency, domain.LevelLow},
	{"quand vous pouvez", DimensionUrgency, domain.LevelLow},
	{"when you can", DimensionUrgency, domain.LevelLow},
	{"ne fonctionne plus", DimensionUrgency, domain.LevelHigh},
	{"ne marche plus", DimensionUrgency, domain.LevelHigh},
	{"hors service", DimensionUrgency, domain.LevelHigh},
	{"not working", DimensionUrgency, domain.LevelHigh},
	{"un peu", DimensionUrgency, domain.LevelLow},

	// impact: phrases
	{"tous les utilisateurs", DimensionImpact, domain.LevelHigh},
	{"toute l'entreprise", DimensionImpact, domain.LevelHigh},
	{"all users", DimensionImpact, domain.LevelHigh},
	{"whole company", DimensionImpact, domain.LevelHigh},
	{"base de données", DimensionImpact, domain.LevelHigh},
	{"fuite de données", DimensionImpact, domain.LevelHigh},
	{"data breach", DimensionImpact, domain.LevelHigh},
	{"mon poste", DimensionImpact, domain.LevelLow},
	{"mon ordinateur", DimensionImpact, domain.LevelLow},
	{"my computer", DimensionImpact, domain.LevelLow},

	// urgency: words
	{"urgent", DimensionUrgency, domain.LevelHigh},
	{"urgence", DimensionUrgency, domain.LevelHigh},
	{"urgently", DimensionUrgency, domain.LevelHigh},
	{"critique", DimensionUrgency, domain.LevelHigh},
	{"critical", DimensionUrgency, domain.LevelHigh},
	{"bloquant", DimensionUrgency, domain.LevelHigh},
	{"bloqué", DimensionUrgency, domain.LevelHigh},
	{"bloquée", DimensionUrgency, domain.LevelHigh},
	{"blocked", DimensionUrgency, domain.LevelHigh},
	{"blocking", DimensionUrgency, domain.LevelHigh},
	{"immédiat", DimensionUrgency, domain.LevelHigh},
	{"immédiatement", DimensionUrgency, domain.LevelHigh},
	{"immediately", DimensionUrgency, domain.LevelHigh},
	{"asap", DimensionUrgency, domain.LevelHigh},
	{"panne", DimensionUrgency, domain.LevelHigh},
	{"down", DimensionUrgency, domain.LevelHigh},
	{"outage", DimensionUrgency, domain.LevelHigh},
	{"impossible", DimensionUrgency, domain.LevelHigh},
	{"lent", DimensionUrgency, domain.LevelMedium},
	{"lenteur", DimensionUrgency, domain.LevelMedium},
	{"slow", DimensionUrgency, domain.LevelMedium},
	{"erreur", DimensionUrgency, domain.LevelMedium},
	{"error", DimensionUrgency, domain.LevelMedium},
	{"intermittent", DimensionUrgency, domain.LevelMedium},
	{"problème", DimensionUrgency, domain.LevelMedium},
	{"problem", DimensionUrgency, domain.LevelMedium},
	{"bug", DimensionUrgency, domain.LevelMedium},
	{"plante", DimensionUrgency, domain.LevelMedium},
	{"crash", DimensionUrgency, domain.LevelMedium},
	{"question", DimensionUrgency, domain.LevelLow},
	{"demande", DimensionUrgency, domain.LevelLow},
	{"information", DimensionUrgency, domain.LevelLow},
	{"suggestion", DimensionUrgency, domain.LevelLow},
	{"amélioration", DimensionUrgency, domain.LevelLow},
	{"improvement", DimensionUrgency, domain.LevelLow},
	{"légèrement", DimensionUrgency, domain.LevelLow},
	{"slightly", DimensionUrgency, domain.LevelLow},
	{"cosmétique", DimensionUrgency, domain.LevelLow},
	{"cosmetic", DimensionUrgency, domain.LevelLow},

	// impact: words
	{"serveur", DimensionImpact, domain.LevelHigh},
	{"server", DimensionImpact, domain.LevelHigh},
	{"production", DimensionImpact, domain.LevelHigh},
	{"prod", DimensionImpact, domain.LevelHigh},
	{"database", DimensionImpact, domain.LevelHigh},
	{"virus", DimensionImpact, domain.LevelHigh},
	{"piratage", DimensionImpact, domain.LevelHigh},
	{"ransomware", DimensionImpact, domain.LevelHigh},
	{"intrusion", DimensionImpact, domain.LevelHigh},
	{"breach", DimensionImpact, domain.LevelHigh},
	{"réseau", DimensionImpact, domain.LevelHigh},
	{"network", DimensionImpact, domain.LevelHigh},
	{"clients", DimensionImpact, domain.LevelHigh},
	{"customers", DimensionImpact, domain.LevelHigh},
	{"équipe", DimensionImpact, domain.LevelMedium},
	{"team", DimensionImpact, domain.LevelMedium},
	{"service", DimensionImpact, domain.LevelMedium},
	{"département", DimensionImpact, domain.LevelMedium},
	{"department", DimensionImpact, domain.LevelMedium},
	{"plusieurs", DimensionImpact, domain.LevelMedium},
	{"several", DimensionImpact, domain.LevelMedium},
	{"application", DimensionImpact, domain.LevelMedium},
	{"messagerie", DimensionImpact, domain.LevelMedium},
	{"personnel", DimensionImpact, domain.LevelLow},
	{"couleur", DimensionImpact, domain.LevelLow},
	{"color", DimensionImpact, domain.LevelLow},
	{"colour", DimensionImpact, domain.LevelLow},
}

// DefaultUrgency applies when no urgency rule matched.
const DefaultUrgency = domain.LevelMedium

var categoryImpact = map[domain.TicketCategory]domain.Level{
	domain.CategoryCriticalSystem: domain.LevelHigh,
	domain.CategoryServer:         domain.LevelHigh,
	domain.CategorySecurity:       domain.LevelHigh,
	domain.CategoryDatabase:       domain.LevelHigh,
	domain.CategoryPrinter:        domain.LevelLow,
	domain.CategoryTraining:       domain.LevelLow,
	domain.CategoryOther:          domain.LevelLow,
}

// BaselineImpact is the impact assumed for a category when no impact rule matched.
func BaselineImpact(category domain.TicketCategory) domain.Level {
	if level, ok := categoryImpact[category]; ok {
		return level
	}
	return domain.LevelMedium
}

// matrix[impact][urgency]
var matrix = map[domain.Level]map[domain.Level]domain.TicketPriority{
	domain.LevelHigh: {
		domain.LevelHigh:   domain.TicketPriorityCritical,
		domain.LevelMedium: domain.TicketPriorityHigh,
		domain.LevelLow:    domain.TicketPriorityHigh,
	},
	domain.LevelMedium: {
		domain.LevelHigh:   domain.TicketPriorityHigh,
		domain.LevelMedium: domain.TicketPriorityMedium,
		domain.LevelLow:    domain.TicketPriorityLow,
	},
	domain.LevelLow: {
		domain.LevelHigh:   domain.TicketPriorityHigh,
		domain.LevelMedium: domain.TicketPriorityLow,
		domain.LevelLow:    domain.TicketPriorityLow,
	},
}

// Combine reads the priority for an impact/urgency pair. Unknown levels are treated as medium.
func Combine(impact, urgency domain.Level) domain.TicketPriority {
	if impact.Rank() == 0 {
		impact = domain.LevelMedium
	}
	if urgency.Rank() == 0 {
		urgency = domain.LevelMedium
	}
	return matrix[impact][urgency]
}

type compiledRule struct {
	Rule
	needle string
}

var compiled = compileRules(Rules)

func compileRules(rules []Rule) []compiledRule {
	out := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		out = append(out, compiledRule{Rule: r, needle: normalize(r.Keyword)})
	}
	return out
}

// Classify computes the priority of a ticket. It has no side effects.
func Classify(title, description string, category domain.TicketCategory) (Classification, error) {
	details := map[string]any{}
	if strings.TrimSpace(title) == "" {
		details["title"] = "required"
	}
	if strings.TrimSpace(description) == "" {
		details["description"] = "required"
	}
	if category == "" {
		details["category"] = "required"
	} else if _, ok := domain.ParseCategory(string(category)); !ok {
		details["category"] = "unknown"
	}
	if len(details) > 0 {
		return Classification{}, apperrors.NewValidationError("title, description and category are required", details)
	}
	category, _ = domain.ParseCategory(string(category))

	text := normalize(title + " " + description)
	var impact, urgency domain.Level
	matched := []string{}
	for _, rule := range compiled {
		if !strings.Contains(text, rule.needle) {
			continue
		}
		for strings.Contains(text, rule.needle) {
			text = strings.ReplaceAll(text, rule.needle, " ")
		}
		matched = append(matched, rule.Keyword)
		switch rule.Dimension {
		case DimensionImpact:
			if rule.Level.Rank() > impact.Rank() {
				impact = rule.Level
			}
		case DimensionUrgency:
			if rule.Level.Rank() > urgency.Rank() {
				urgency = rule.Level
			}
		}
	}
	if impact == "" {
		impact = BaselineImpact(category)
	}
	if urgency == "" {
		urgency = DefaultUrgency
	}

	return Classification{
		Priority:        Combine(impact, urgency),
		Impact:          impact,
		Urgency:         urgency,
		MatchedKeywords: matched,
	}, nil
}

// normalize lower-cases, strips diacritics and folds every non alphanumeric run into a
// single space. The result is padded with spaces so that " word " matches whole words only.
func normalize(s string) string {
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, strings.ToLower(s))
	if err != nil {
		folded = strings.ToLower(s)
	}

	var b strings.Builder
	b.Grow(len(folded) + 2)
	b.WriteByte(' ')
	space := true
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	if !space {
		b.WriteByte(' ')
	}
	return b.String()
}
