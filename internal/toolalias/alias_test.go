package toolalias

import (
	"regexp"
	"strings"
	"testing"

	"github.com/pysugar/agent-nexus/internal/db/models"
)

func TestGenerate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "simple", input: "CEO Calendar", want: "ceo_calendar"},
		{name: "three words", input: "Sales Team CRM", want: "sales_team_crm"},
		{name: "special chars", input: "Marketing @ HubSpot", want: "marketing_hubspot"},
		{name: "surrounding space", input: "  Ops  Calendar ", want: "ops_calendar"},
		{name: "tabs and newlines", input: "a\t\nb", want: "a_b"},
		{name: "underscores stripped", input: "my_calendar", want: "mycalendar"},
		{name: "only symbols", input: "@@@!!", want: ""},
		{name: "non ascii", input: "Café Équipe", want: "caf_quipe"},
		{name: "empty", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Generate(tt.input); got != tt.want {
				t.Fatalf("Generate(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestGenerate_CharacterClassAndLength(t *testing.T) {
	pattern := regexp.MustCompile(`^[a-z0-9_]{1,50}$`)
	inputs := []string{
		strings.Repeat("Very Long Calendar Name ", 10),
		"Ünïcödé  Tëst 123",
		"---a---",
		"x",
		strings.Repeat("a", 120),
	}
	for _, in := range inputs {
		got := Generate(in)
		if !pattern.MatchString(got) {
			t.Fatalf("Generate(%q) = %q violates character class", in, got)
		}
		if Generate(in) != got {
			t.Fatalf("Generate(%q) is not deterministic", in)
		}
	}
}

func TestValidate(t *testing.T) {
	if !Validate("ceo_calendar") {
		t.Fatalf("expected ceo_calendar to be valid")
	}
	for _, bad := range []string{"", "CEO", "a-b", strings.Repeat("a", 51)} {
		if Validate(bad) {
			t.Fatalf("expected %q to be invalid", bad)
		}
	}
}

func TestUnique(t *testing.T) {
	taken := map[string]bool{}

	first := Unique("Sales CRM", models.ProviderHubSpot, taken)
	second := Unique("sales crm!", models.ProviderHubSpot, taken)
	third := Unique("Sales  CRM", models.ProviderHubSpot, taken)
	if first != "sales_crm" || second != "sales_crm_2" || third != "sales_crm_3" {
		t.Fatalf("unexpected aliases: %q %q %q", first, second, third)
	}

	if got := Unique("Search Docs", models.ProviderGoogleCalendar, taken); got != "search_docs_2" {
		t.Fatalf("expected reserved alias to be suffixed, got %q", got)
	}
	if got := Unique("###", models.ProviderGoogleCalendar, taken); got != "google_calendar" {
		t.Fatalf("expected provider fallback, got %q", got)
	}

	long := strings.Repeat("b", 60)
	a := Unique(long, models.ProviderHubSpot, taken)
	b := Unique(long, models.ProviderHubSpot, taken)
	if len(a) != MaxLen || len(b) != MaxLen || a == b {
		t.Fatalf("expected distinct aliases of max length, got %q %q", a, b)
	}
	if !strings.HasSuffix(b, "_2") {
		t.Fatalf("expected suffix on collision, got %q", b)
	}
}

func TestToolDescription(t *testing.T) {
	got := ToolDescription(models.ProviderGoogleCalendar, "CEO Calendar")
	if got != "Book meetings and manage calendar events for CEO Calendar" {
		t.Fatalf("unexpected description %q", got)
	}
	if got := ToolDisplayName(models.ProviderHubSpot, "Sales"); got != "Sales (HubSpot CRM)" {
		t.Fatalf("unexpected display name %q", got)
	}
}
