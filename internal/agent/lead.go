package agent

import (
	"fmt"
	"sort"
	"strings"
)

// Lead is the profile collected over a conversation, keyed by field name.
// It is sparse: absent key means not yet collected. Values the model
// extracts beyond the configured field spec are kept, not dropped.
type Lead map[string]string

// FieldSpec names one piece of lead data to collect and how to ask for it.
// A slice of specs carries the ask order.
type FieldSpec struct {
	Key         string `json:"key"`
	Description string `json:"description"`
}

// DefaultLeadFields is the recruiting profile collected when the caller
// supplies no field spec of its own.
func DefaultLeadFields() []FieldSpec {
	return []FieldSpec{
		{"name", "The candidate's full name"},
		{"email", "The candidate's email address"},
		{"phone", "The candidate's phone number"},
		{"current_company", "The company the candidate currently works for"},
		{"skills", "The candidate's key skills"},
		{"current_ctc", "The candidate's current compensation"},
		{"expected_ctc", "The compensation the candidate expects"},
		{"notice_period", "The candidate's notice period"},
		{"location", "Where the candidate is located"},
		{"job_title", "The candidate's current job title"},
		{"year_of_experience", "The candidate's years of experience"},
		{"education", "The candidate's education background"},
	}
}

// Merge returns a new lead with extracted values folded in. Collection is
// monotonic: a field that already holds a value is never cleared or
// overwritten by an empty extraction, but a new non-empty value replaces the
// old one.
func (l Lead) Merge(extracted map[string]any) Lead {
	merged := make(Lead, len(l)+len(extracted))
	for k, v := range l {
		merged[k] = v
	}
	for k, v := range extracted {
		if v == nil {
			continue
		}
		s := strings.TrimSpace(fmt.Sprintf("%v", v))
		if s == "" || strings.EqualFold(s, "null") {
			continue
		}
		merged[k] = s
	}
	return merged
}

// Missing lists the fields of spec still to collect, in ask order.
func (l Lead) Missing(spec []FieldSpec) []FieldSpec {
	var missing []FieldSpec
	for _, f := range spec {
		if l[f.Key] == "" {
			missing = append(missing, f)
		}
	}
	return missing
}

// Complete reports whether every field of spec has been collected.
func (l Lead) Complete(spec []FieldSpec) bool {
	return len(l.Missing(spec)) == 0
}

// describeMissing renders the still-to-collect fields for the system prompt.
func describeMissing(l Lead, spec []FieldSpec) string {
	var lines []string
	for _, f := range l.Missing(spec) {
		lines = append(lines, fmt.Sprintf("- %s: %s", f.Key, f.Description))
	}
	if len(lines) == 0 {
		return "All lead data has been collected."
	}
	return strings.Join(lines, "\n")
}

// describeCollected renders the collected fields for the system prompt:
// spec fields in ask order first, then any extras the model volunteered.
func describeCollected(l Lead, spec []FieldSpec) string {
	var lines []string
	seen := make(map[string]bool, len(spec))
	for _, f := range spec {
		seen[f.Key] = true
		if v := l[f.Key]; v != "" {
			lines = append(lines, fmt.Sprintf("- %s: %s", f.Key, v))
		}
	}
	var extras []string
	for k, v := range l {
		if !seen[k] && v != "" {
			extras = append(extras, k)
		}
	}
	sort.Strings(extras)
	for _, k := range extras {
		lines = append(lines, fmt.Sprintf("- %s: %s", k, l[k]))
	}
	if len(lines) == 0 {
		return "No lead data collected yet."
	}
	return strings.Join(lines, "\n")
}
