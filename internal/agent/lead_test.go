package agent

import (
	"strings"
	"testing"
)

func TestLeadMerge(t *testing.T) {
	lead := Lead{"name": "Ada Lovelace"}

	merged := lead.Merge(map[string]any{
		"email":              "ada@example.com",
		"year_of_experience": 12,
		"name":               nil,  // nil never clears
		"phone":              "  ", // blank never sets
		"github_handle":      "adal",
	})

	if merged["name"] != "Ada Lovelace" {
		t.Errorf("name = %q, nil extraction must not clear it", merged["name"])
	}
	if merged["email"] != "ada@example.com" {
		t.Errorf("email = %q", merged["email"])
	}
	if merged["year_of_experience"] != "12" {
		t.Errorf("year_of_experience = %q, want numeric value as string", merged["year_of_experience"])
	}
	if _, ok := merged["phone"]; ok {
		t.Errorf("phone = %q, blank extraction must not set it", merged["phone"])
	}
	// Keys beyond the configured spec survive the merge.
	if merged["github_handle"] != "adal" {
		t.Errorf("github_handle = %q, volunteered fields must be kept", merged["github_handle"])
	}

	if lead["email"] != "" {
		t.Error("Merge mutated the original lead")
	}
}

func TestLeadMergeOverwritesWithNewValue(t *testing.T) {
	lead := Lead{"location": "Berlin"}
	merged := lead.Merge(map[string]any{"location": "Munich"})

	if merged["location"] != "Munich" {
		t.Errorf("location = %q, a new non-empty value should replace the old one", merged["location"])
	}
}

func TestLeadMergeIgnoresLiteralNull(t *testing.T) {
	lead := Lead{"skills": "Go"}
	merged := lead.Merge(map[string]any{"skills": "null"})

	if merged["skills"] != "Go" {
		t.Errorf("skills = %q, the string \"null\" must not overwrite", merged["skills"])
	}
}

func TestLeadMergeFromNil(t *testing.T) {
	var lead Lead
	merged := lead.Merge(map[string]any{"name": "Ada"})

	if merged["name"] != "Ada" {
		t.Errorf("name = %q, merge into a nil lead must work", merged["name"])
	}
}

func TestLeadMissingAndComplete(t *testing.T) {
	spec := DefaultLeadFields()

	var lead Lead
	if lead.Complete(spec) {
		t.Fatal("empty lead reported complete")
	}
	if got := len(lead.Missing(spec)); got != 12 {
		t.Fatalf("Missing() returned %d fields, want 12", got)
	}

	full := make(Lead, len(spec))
	for _, f := range spec {
		full[f.Key] = "x"
	}
	if !full.Complete(spec) {
		t.Errorf("lead with all fields set reported incomplete: missing %v", full.Missing(spec))
	}
}

func TestLeadCustomFieldSpec(t *testing.T) {
	spec := []FieldSpec{
		{Key: "company_size", Description: "How many people work at the company"},
		{Key: "budget", Description: "The available budget"},
	}

	lead := Lead{"company_size": "50"}
	missing := lead.Missing(spec)
	if len(missing) != 1 || missing[0].Key != "budget" {
		t.Errorf("Missing() = %v, want only budget", missing)
	}

	lead = lead.Merge(map[string]any{"budget": "10k"})
	if !lead.Complete(spec) {
		t.Errorf("lead = %v, want complete against custom spec", lead)
	}
}

func TestLeadPromptSections(t *testing.T) {
	spec := DefaultLeadFields()

	if got := describeCollected(Lead{}, spec); got != "No lead data collected yet." {
		t.Errorf("describeCollected() on empty lead = %q", got)
	}

	lead := Lead{"name": "Ada", "email": "ada@example.com", "github_handle": "adal"}
	collected := describeCollected(lead, spec)
	for _, want := range []string{"- name: Ada", "- email: ada@example.com", "- github_handle: adal"} {
		if !strings.Contains(collected, want) {
			t.Errorf("describeCollected() = %q, missing %q", collected, want)
		}
	}

	missing := describeMissing(lead, spec)
	if strings.Contains(missing, "- name:") {
		t.Errorf("describeMissing() still lists name: %q", missing)
	}
	if !strings.Contains(missing, "- phone:") {
		t.Errorf("describeMissing() should list phone: %q", missing)
	}

	full := make(Lead, len(spec))
	for _, f := range spec {
		full[f.Key] = "x"
	}
	if got := describeMissing(full, spec); got != "All lead data has been collected." {
		t.Errorf("describeMissing() on full lead = %q", got)
	}
}
