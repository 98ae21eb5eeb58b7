package agent

import (
	"reflect"
	"testing"
)

func TestParseReplyPlainJSON(t *testing.T) {
	raw := `{"query_answer": "Hello!", "lead_data": {"name": "Ada"}, "cited_chunks": ["c1", 2]}`

	reply := ParseReply(raw)

	if reply.Answer != "Hello!" {
		t.Errorf("Answer = %q, want %q", reply.Answer, "Hello!")
	}
	if reply.LeadData["name"] != "Ada" {
		t.Errorf("LeadData[name] = %v, want Ada", reply.LeadData["name"])
	}
	if want := []string{"c1", "2"}; !reflect.DeepEqual(reply.CitedChunks, want) {
		t.Errorf("CitedChunks = %v, want %v", reply.CitedChunks, want)
	}
}

func TestParseReplyFencedJSON(t *testing.T) {
	raw := "Here is my answer.\n```json\n{\"query_answer\": \"inner\", \"lead_data\": null, \"cited_chunks\": []}\n```"

	reply := ParseReply(raw)

	// Prose before the fence wins over the inner answer.
	if reply.Answer != "Here is my answer." {
		t.Errorf("Answer = %q, want prefix text", reply.Answer)
	}
	if reply.LeadData == nil || reply.CitedChunks == nil {
		t.Error("LeadData and CitedChunks must never be nil")
	}
}

func TestParseReplyFencedJSONNoPrefix(t *testing.T) {
	raw := "```json\n{\"query_answer\": \"inner\", \"lead_data\": {\"email\": \"a@b.c\"}, \"cited_chunks\": [\"x\"]}\n```"

	reply := ParseReply(raw)

	if reply.Answer != "inner" {
		t.Errorf("Answer = %q, want %q", reply.Answer, "inner")
	}
	if reply.LeadData["email"] != "a@b.c" {
		t.Errorf("LeadData[email] = %v", reply.LeadData["email"])
	}
}

func TestParseReplyBareObjectInText(t *testing.T) {
	raw := `Sure thing. {"query_answer": "42", "lead_data": {}, "cited_chunks": ["k"]}`

	reply := ParseReply(raw)

	if reply.Answer != "Sure thing." {
		t.Errorf("Answer = %q, want prefix text", reply.Answer)
	}
	if len(reply.CitedChunks) != 1 || reply.CitedChunks[0] != "k" {
		t.Errorf("CitedChunks = %v, want [k]", reply.CitedChunks)
	}
}

func TestParseReplyUnparseableFence(t *testing.T) {
	raw := "The answer is below.\n```json\n{not valid json\n```"

	reply := ParseReply(raw)

	if reply.Answer != "The answer is below." {
		t.Errorf("Answer = %q, want text before the fence", reply.Answer)
	}
	if reply.LeadData == nil || reply.CitedChunks == nil {
		t.Error("LeadData and CitedChunks must never be nil")
	}
}

func TestParseReplyPlainText(t *testing.T) {
	reply := ParseReply("Just a normal sentence.")

	if reply.Answer != "Just a normal sentence." {
		t.Errorf("Answer = %q", reply.Answer)
	}
	if len(reply.LeadData) != 0 || len(reply.CitedChunks) != 0 {
		t.Errorf("expected empty lead data and citations, got %v / %v", reply.LeadData, reply.CitedChunks)
	}
}

func TestParseReplyEmptyInput(t *testing.T) {
	reply := ParseReply("")

	if reply.Answer != "" {
		t.Errorf("Answer = %q, want empty", reply.Answer)
	}
	if reply.LeadData == nil || reply.CitedChunks == nil {
		t.Error("LeadData and CitedChunks must never be nil")
	}
}

func TestParseReplyIrrelevantJSON(t *testing.T) {
	// Valid JSON without any of the reply fields is not a reply.
	raw := `{"foo": "bar"}`

	reply := ParseReply(raw)

	if reply.Answer != raw {
		t.Errorf("Answer = %q, want the raw text back", reply.Answer)
	}
}

func TestScrapeQueryArg(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"unquoted value", `{"query": What is the notice period}`, "What is the notice period"},
		{"single quotes", `{'query': 'remote work policy'}`, "remote work policy"},
		{"no braces", `query: benefits`, "benefits"},
		{"bare text", `benefits`, "benefits"},
		{"empty", ``, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scrapeQueryArg(tt.in); got != tt.want {
				t.Errorf("scrapeQueryArg(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
