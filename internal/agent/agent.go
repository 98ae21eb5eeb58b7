// Package agent implements a lead-collecting conversational assistant that
// answers questions from a vector-indexed knowledge base via tool calls.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/conversia-ai/conversia/internal/embedding"
	"github.com/conversia-ai/conversia/internal/llm"
	"github.com/conversia-ai/conversia/internal/vectordb"
)

const systemPromptTemplate = `You are a helpful and empathetic hiring assistant.
Your job is to have a natural conversation with the user while:
1. Collecting the lead data we need, ONLY if the user has not provided it before
2. Answering any questions they might have using our knowledge base
3. Always using the search tool before saying you do not know something

LEAD DATA TO COLLECT:
%s

CURRENT LEAD DATA:
%s

GUIDELINES:
1. Be conversational and natural - don't sound like a form
2. Only ask for ONE piece of missing lead data at a time
3. If the user asks a specific question, use the search_knowledge_base tool to find information
4. When using information from the knowledge base, cite sources with numbers like (1), (2)
5. Don't ask for information the user has already provided
6. Extract any lead data the user provides, even if they volunteer it without being asked
7. If all lead data is collected, focus on answering questions and providing value
8. NEVER answer a question that is not grounded in search_knowledge_base results; instead guide the user on what they can ask
9. If the conversation history leaves the user's query ambiguous, ask for clarification

RESPONSE FORMAT:
Your response must be a valid JSON object with these fields ONLY:
- query_answer: your next conversational turn
- lead_data: any lead data extracted from this message (null if none)
- cited_chunks: list of chunk IDs you cited in your response (empty list if none)
When you are calling a tool, do not return the JSON object; return it once you have the tool results.

Example:
user: hi
assistant:
{
  "query_answer": "Hello! How can I assist you today?",
  "lead_data": null,
  "cited_chunks": []
}`

const apologyMessage = "I'm sorry, I encountered an error while processing your message. Please try again later."

// maxToolRounds caps the tool loop so a model that keeps requesting
// searches cannot spin forever.
const maxToolRounds = 5

// Agent drives one conversation turn: prompt assembly, the tool loop,
// reply parsing and lead extraction.
type Agent struct {
	llm        llm.Client
	embeddings *embedding.Service
	store      vectordb.Store
	logger     *slog.Logger

	model          string
	temperature    float64
	maxChunks      int
	requiredFields []FieldSpec
}

type Config struct {
	Model          string
	Temperature    float64
	MaxChunks      int         // retrieval depth per search
	RequiredFields []FieldSpec // lead fields to collect; nil means DefaultLeadFields
}

func New(client llm.Client, embeddings *embedding.Service, store vectordb.Store, logger *slog.Logger, cfg Config) *Agent {
	if cfg.MaxChunks <= 0 {
		cfg.MaxChunks = 5
	}
	if len(cfg.RequiredFields) == 0 {
		cfg.RequiredFields = DefaultLeadFields()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		llm:            client,
		embeddings:     embeddings,
		store:          store,
		logger:         logger,
		model:          cfg.Model,
		temperature:    cfg.Temperature,
		maxChunks:      cfg.MaxChunks,
		requiredFields: cfg.RequiredFields,
	}
}

// ChatRequest is one user turn with its accumulated state. History holds
// prior user and assistant turns; the agent owns tool turns internally.
// RequiredFields overrides the agent's configured field spec for this
// conversation; nil uses the configured one.
type ChatRequest struct {
	Message        string
	History        []llm.Turn
	Lead           Lead
	RequiredFields []FieldSpec
	Collection     string
}

// ChatResult is the agent's reply. Lead is the merged profile after this
// turn; Sources are the chunks retrieved while producing the answer.
type ChatResult struct {
	Answer      string                  `json:"query_answer"`
	Lead        Lead                    `json:"lead_data"`
	CitedChunks []string                `json:"cited_chunks"`
	Sources     []vectordb.SearchResult `json:"sources,omitempty"`
}

// Chat processes one user message. Provider failures degrade to an apology
// reply instead of an error; only context cancellation propagates.
func (a *Agent) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	fields := req.RequiredFields
	if len(fields) == 0 {
		fields = a.requiredFields
	}
	system := fmt.Sprintf(systemPromptTemplate, describeMissing(req.Lead, fields), describeCollected(req.Lead, fields))
	tools := []llm.ToolDefinition{searchToolDefinition()}

	history := append([]llm.Turn(nil), req.History...)
	res, err := a.llm.Run(ctx, llm.RunRequest{
		Model:       a.model,
		System:      system,
		History:     history,
		UserMessage: req.Message,
		Tools:       tools,
		Temperature: a.temperature,
	})
	if err != nil {
		return a.apologize(req, err)
	}

	// The model's user turn is part of history from here on; follow-up runs
	// carry only the tool exchange.
	history = append(history, llm.Turn{Role: llm.RoleUser, Content: req.Message})

	var sources []vectordb.SearchResult
	for round := 0; res.Kind == llm.ResultToolCalls; round++ {
		if round >= maxToolRounds {
			a.logger.Warn("tool loop cap reached", "rounds", round, "collection", req.Collection)
			return a.apologize(req, fmt.Errorf("tool loop exceeded %d rounds", maxToolRounds))
		}

		history = append(history, llm.Turn{
			Role:      llm.RoleAssistant,
			Content:   res.Content,
			ToolCalls: res.ToolCalls,
		})

		for _, call := range res.ToolCalls {
			content, results := a.executeToolCall(ctx, req.Collection, call)
			sources = append(sources, results...)
			history = append(history, llm.Turn{
				Role:    llm.RoleTool,
				Content: content,
				ToolID:  call.ID,
			})
		}

		res, err = a.llm.Run(ctx, llm.RunRequest{
			Model:       a.model,
			System:      system,
			History:     history,
			Tools:       tools,
			Temperature: a.temperature,
		})
		if err != nil {
			return a.apologize(req, err)
		}
	}

	reply := ParseReply(res.Content)

	return &ChatResult{
		Answer:      reply.Answer,
		Lead:        req.Lead.Merge(reply.LeadData),
		CitedChunks: reply.CitedChunks,
		Sources:     sources,
	}, nil
}

// executeToolCall runs one requested tool and returns the tool-turn content
// plus any retrieved chunks. Tool failures are reported back to the model
// rather than aborting the turn.
func (a *Agent) executeToolCall(ctx context.Context, collection string, call llm.ToolCall) (string, []vectordb.SearchResult) {
	if call.Name != searchToolName {
		a.logger.Warn("unknown tool requested", "tool", call.Name)
		return fmt.Sprintf("Error: unknown tool %q. Only %s is available.", call.Name, searchToolName), nil
	}

	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil || args.Query == "" {
		// Malformed arguments still usually contain the query text.
		args.Query = scrapeQueryArg(call.Arguments)
	}

	results, err := a.searchKnowledgeBase(ctx, collection, args.Query)
	if err != nil {
		a.logger.Error("knowledge base search failed", "collection", collection, "error", err)
		return "Error: the knowledge base is unavailable right now.", nil
	}
	return formatSearchResults(results), results
}

func (a *Agent) apologize(req ChatRequest, err error) (*ChatResult, error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}
	a.logger.Error("conversation turn failed", "collection", req.Collection, "error", err)
	return &ChatResult{
		Answer:      apologyMessage,
		Lead:        req.Lead,
		CitedChunks: []string{},
	}, nil
}
