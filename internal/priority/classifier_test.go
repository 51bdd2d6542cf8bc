package priority

import (
	"reflect"
	"testing"

	"github.com/helpdeskhq/support-desk/internal/domain"
	apperrors "github.com/helpdeskhq/support-desk/pkg/util"
)

func TestClassifyProductionServerOutageIsCritical(t *testing.T) {
	got, err := Classify("Serveur de production bloqué", "Le service est critique pour la paie", domain.CategoryServer)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if got.Priority != domain.TicketPriorityCritical {
		t.Fatalf("expected critical, got %q (%+v)", got.Priority, got)
	}
	if got.Impact != domain.LevelHigh || got.Urgency != domain.LevelHigh {
		t.Fatalf("expected high/high, got %q/%q", got.Impact, got.Urgency)
	}
	for _, kw := range []string{"serveur", "production", "bloqué", "critique"} {
		if !contains(got.MatchedKeywords, kw) {
			t.Fatalf("expected keyword %q in %v", kw, got.MatchedKeywords)
		}
	}
}

func TestClassifyPrinterQuestionIsLowOrMedium(t *testing.T) {
	category, ok := domain.ParseCategory("Imprimante")
	if !ok {
		t.Fatalf("Imprimante must be a known category")
	}
	got, err := Classify("Question sur l'imprimante", "couleur un peu pâle", category)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if got.Priority != domain.TicketPriorityLow && got.Priority != domain.TicketPriorityMedium {
		t.Fatalf("expected low or medium, got %q", got.Priority)
	}
	if got.Urgency == domain.LevelHigh {
		t.Fatalf("no urgency keyword present, got high urgency")
	}
}

func TestClassifyAcceptsCategoryLabel(t *testing.T) {
	got, err := Classify("Serveur de production bloqué", "incident critique", domain.TicketCategory("Serveur"))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if got.Priority != domain.TicketPriorityCritical {
		t.Fatalf("expected critical, got %q", got.Priority)
	}
}

func TestClassifyFallsBackWithoutKeywords(t *testing.T) {
	got, err := Classify("Bonjour", "Voir pièce jointe", domain.CategorySoftware)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if got.Priority != domain.TicketPriorityMedium {
		t.Fatalf("expected medium fallback, got %q", got.Priority)
	}
	if got.Impact != domain.LevelMedium || got.Urgency != DefaultUrgency {
		t.Fatalf("expected default levels, got %q/%q", got.Impact, got.Urgency)
	}
	if len(got.MatchedKeywords) != 0 {
		t.Fatalf("expected no keywords, got %v", got.MatchedKeywords)
	}
}

func TestClassifyNegationDoesNotCountAsUrgent(t *testing.T) {
	got, err := Classify("Changement de fond d'écran", "pas urgent du tout", domain.CategoryOther)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if got.Urgency != domain.LevelLow {
		t.Fatalf("expected low urgency, got %q", got.Urgency)
	}
	if contains(got.MatchedKeywords, "urgent") {
		t.Fatalf("negated keyword must not match on its own: %v", got.MatchedKeywords)
	}
}

func TestClassifyMatchesWholeWordsOnly(t *testing.T) {
	got, err := Classify("Download manager", "the downloads folder is slow", domain.CategorySoftware)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if contains(got.MatchedKeywords, "down") {
		t.Fatalf("down must not match inside download: %v", got.MatchedKeywords)
	}
	if got.Urgency != domain.LevelMedium {
		t.Fatalf("expected medium urgency from slow, got %q", got.Urgency)
	}
}

func TestClassifyValidation(t *testing.T) {
	cases := []struct {
		title, description string
		category           domain.TicketCategory
	}{
		{"", "desc", domain.CategoryNetwork},
		{"title", "   ", domain.CategoryNetwork},
		{"title", "desc", ""},
		{"title", "desc", "toaster"},
	}
	for _, tt := range cases {
		_, err := Classify(tt.title, tt.description, tt.category)
		if !apperrors.HasCode(err, apperrors.CodeValidation) {
			t.Fatalf("Classify(%q,%q,%q) err=%v, want validation error", tt.title, tt.description, tt.category, err)
		}
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	inputs := []struct {
		title, description string
		category           domain.TicketCategory
	}{
		{"Réseau en panne", "tous les utilisateurs sont bloqués", domain.CategoryNetwork},
		{"Imprimante", "bourrage papier", domain.CategoryPrinter},
		{"Compte verrouillé", "impossible de me connecter", domain.CategoryAccount},
		{"Suggestion", "amélioration de la messagerie", domain.CategoryEmail},
	}
	for _, in := range inputs {
		first, err := Classify(in.title, in.description, in.category)
		if err != nil {
			t.Fatalf("classify: %v", err)
		}
		if !validPriority(first.Priority) {
			t.Fatalf("priority %q out of range", first.Priority)
		}
		for i := 0; i < 5; i++ {
			again, err := Classify(in.title, in.description, in.category)
			if err != nil {
				t.Fatalf("classify: %v", err)
			}
			if !reflect.DeepEqual(first, again) {
				t.Fatalf("classification changed between calls: %+v vs %+v", first, again)
			}
		}
	}
}

func TestCombineTable(t *testing.T) {
	cases := []struct {
		impact, urgency domain.Level
		want            domain.TicketPriority
	}{
		{domain.LevelHigh, domain.LevelHigh, domain.TicketPriorityCritical},
		{domain.LevelHigh, domain.LevelMedium, domain.TicketPriorityHigh},
		{domain.LevelHigh, domain.LevelLow, domain.TicketPriorityHigh},
		{domain.LevelMedium, domain.LevelHigh, domain.TicketPriorityHigh},
		{domain.LevelLow, domain.LevelHigh, domain.TicketPriorityHigh},
		{domain.LevelMedium, domain.LevelMedium, domain.TicketPriorityMedium},
		{domain.LevelMedium, domain.LevelLow, domain.TicketPriorityLow},
		{domain.LevelLow, domain.LevelMedium, domain.TicketPriorityLow},
		{domain.LevelLow, domain.LevelLow, domain.TicketPriorityLow},
		{"", "", domain.TicketPriorityMedium},
	}
	for _, tt := range cases {
		if got := Combine(tt.impact, tt.urgency); got != tt.want {
			t.Fatalf("Combine(%q,%q)=%q, want %q", tt.impact, tt.urgency, got, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	if got := normalize("Système  CRITIQUE, l'écran!"); got != " systeme critique l ecran " {
		t.Fatalf("unexpected normalization %q", got)
	}
	if got := normalize(""); got != " " {
		t.Fatalf("empty input should normalize to a single space, got %q", got)
	}
}

func validPriority(p domain.TicketPriority) bool {
	for _, candidate := range domain.Priorities {
		if candidate == p {
			return true
		}
	}
	return false
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
