package agent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Reply is the structured assistant turn after parsing and repair.
type Reply struct {
	Answer      string         `json:"query_answer"`
	LeadData    map[string]any `json:"lead_data"`
	CitedChunks []string       `json:"cited_chunks"`
}

var (
	fencedJSONRe = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")
	bareJSONRe   = regexp.MustCompile(`(?s)(\{.*"query_answer".*"lead_data".*"cited_chunks".*\})`)
)

// ParseReply recovers a structured reply from whatever text the model
// produced. It never fails: models sometimes wrap the JSON in prose or a code
// fence, or skip it entirely, and every one of those shapes degrades to a
// usable reply rather than an error.
func ParseReply(raw string) Reply {
	trimmed := strings.TrimSpace(raw)

	// The well-behaved case: the whole message is the JSON object.
	if reply, ok := decodeReply(trimmed); ok {
		return reply
	}

	// JSON inside a ```json fence, possibly preceded by prose.
	if m := fencedJSONRe.FindStringSubmatch(trimmed); m != nil {
		if reply, ok := decodeReply(m[1]); ok {
			if prefix := strings.TrimSpace(strings.SplitN(trimmed, "```json", 2)[0]); prefix != "" {
				reply.Answer = prefix
			}
			return reply
		}
		// Unparseable fence: keep whatever prose came before it.
		return Reply{
			Answer:      strings.TrimSpace(strings.SplitN(trimmed, "```", 2)[0]),
			LeadData:    map[string]any{},
			CitedChunks: []string{},
		}
	}

	// A bare object embedded in the text, recognizable by its field names.
	if m := bareJSONRe.FindStringSubmatch(trimmed); m != nil {
		if reply, ok := decodeReply(m[1]); ok {
			if prefix := strings.TrimSpace(strings.SplitN(trimmed, "{", 2)[0]); prefix != "" {
				reply.Answer = prefix
			}
			return reply
		}
	}

	// No structure found: the text is the answer.
	return Reply{
		Answer:      trimmed,
		LeadData:    map[string]any{},
		CitedChunks: []string{},
	}
}

func decodeReply(s string) (Reply, bool) {
	var parsed struct {
		QueryAnswer *string        `json:"query_answer"`
		LeadData    map[string]any `json:"lead_data"`
		CitedChunks []any          `json:"cited_chunks"`
	}
	if err := json.Unmarshal([]byte(s), &parsed); err != nil {
		return Reply{}, false
	}
	if parsed.QueryAnswer == nil && parsed.LeadData == nil && parsed.CitedChunks == nil {
		return Reply{}, false
	}

	reply := Reply{
		LeadData:    parsed.LeadData,
		CitedChunks: make([]string, 0, len(parsed.CitedChunks)),
	}
	if parsed.QueryAnswer != nil {
		reply.Answer = *parsed.QueryAnswer
	}
	if reply.LeadData == nil {
		reply.LeadData = map[string]any{}
	}
	// Models cite by ID string or by bare number; normalize to strings.
	for _, c := range parsed.CitedChunks {
		reply.CitedChunks = append(reply.CitedChunks, fmt.Sprintf("%v", c))
	}
	return reply, true
}

// scrapeQueryArg salvages the query from malformed tool-call arguments that
// json.Unmarshal rejected, e.g. `{"query": What is the notice period}`. It
// takes whatever follows the last colon and strips quoting.
func scrapeQueryArg(arguments string) string {
	s := strings.Trim(arguments, "{}")
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[i+1:]
	}
	return strings.Trim(s, ` "'`)
}
