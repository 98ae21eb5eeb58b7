package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/conversia-ai/conversia/internal/llm"
	"github.com/conversia-ai/conversia/internal/vectordb"
)

const searchToolName = "search_knowledge_base"

func searchToolDefinition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        searchToolName,
		Description: "Search the knowledge base for information to answer user questions",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The complete contextual sentence which should retrieve the best answer from the knowledge base",
				},
			},
			"required": []string{"query"},
		},
	}
}

// searchKnowledgeBase embeds the query and retrieves the best-matching
// chunks. Backends may return the same chunk more than once; duplicates keep
// their highest score and the final list is ordered by descending score.
func (a *Agent) searchKnowledgeBase(ctx context.Context, collection, query string) ([]vectordb.SearchResult, error) {
	vector, err := a.embeddings.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := a.store.Search(ctx, collection, vector, a.maxChunks, nil)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}

	best := make(map[string]vectordb.SearchResult, len(results))
	for _, r := range results {
		if prev, ok := best[r.ID]; !ok || r.Score > prev.Score {
			best[r.ID] = r
		}
	}

	unique := make([]vectordb.SearchResult, 0, len(best))
	for _, r := range best {
		unique = append(unique, r)
	}
	sort.SliceStable(unique, func(i, j int) bool {
		return unique[i].Score > unique[j].Score
	})
	if len(unique) > a.maxChunks {
		unique = unique[:a.maxChunks]
	}
	return unique, nil
}

// formatSearchResults renders retrieved chunks as the JSON document the
// model reads back in the tool turn.
func formatSearchResults(results []vectordb.SearchResult) string {
	type row struct {
		ID    string  `json:"id"`
		Text  string  `json:"text"`
		Score float64 `json:"score"`
	}
	rows := make([]row, len(results))
	for i, r := range results {
		rows[i] = row{ID: r.ID, Text: r.Text, Score: r.Score}
	}
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(data)
}
