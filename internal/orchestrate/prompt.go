package orchestrate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/atlas-ai/knowledge-core/internal/llm"
	"github.com/atlas-ai/knowledge-core/internal/model"
	"github.com/atlas-ai/knowledge-core/internal/retrieve"
)

const enhancePrompt = `Rewrite the user's latest message as a standalone search query for a knowledge base.
Resolve pronouns and references using the conversation history. Keep it concise.
Respond with ONLY a JSON object: {"enhancedQuery":"<rewritten query>"}`

const contentRules = `Use only the knowledge base context provided in this conversation to answer questions. Do not invent information that is not present in that context. If the context does not contain the answer, say you don't know. Respond in clear, well-formatted prose.`

// fixedSystemMessage is the instructional message every turn opens with:
// an identity line when the agent has a display name, then the fixed
// content rules.
func fixedSystemMessage(agentName string) string {
	var b strings.Builder
	if agentName != "" {
		fmt.Fprintf(&b, "You are %s.\n\n", agentName)
	}
	b.WriteString(contentRules)
	return b.String()
}

// buildMessages assembles the full message list for one chat turn: the
// fixed instructional system message, the agent's own system_prompt (if
// any), the conversation history (role agent remapped to assistant), a
// dedicated Knowledge-Base message (omitted entirely when retrieval found
// nothing), and finally the enhanced user query — which always occupies
// the last position.
func buildMessages(agent *model.Agent, history []*model.ChatMessage, results []retrieve.Result, enhancedQuery string) []llm.Message {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: fixedSystemMessage(agent.DisplayName)},
	}
	if agent.SystemPrompt != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: agent.SystemPrompt})
	}

	for _, m := range history {
		role := llm.RoleUser
		if m.Role == model.ChatRoleAgent {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: m.Content})
	}

	if kb := formatKBBlock(results); kb != "" {
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: kb})
	}

	return append(messages, llm.Message{Role: llm.RoleUser, Content: enhancedQuery})
}

// formatKBBlock renders retrieved source cards as a single Knowledge-Base
// block: each card is one metadata line of truthy-only fields, a blank
// line, then its concatenated chunk text (if any); cards are joined by
// "\n\n###\n\n". Returns "" when there is nothing retrieved, so callers can
// skip adding a Knowledge-Base message entirely.
func formatKBBlock(results []retrieve.Result) string {
	if len(results) == 0 {
		return ""
	}

	cards := make([]string, 0, len(results))
	for _, r := range results {
		cards = append(cards, formatCard(r))
	}
	return "Knowledge base context:\n\n" + strings.Join(cards, "\n\n###\n\n")
}

func formatCard(r retrieve.Result) string {
	fields := []string{fmt.Sprintf("knowledge_source: %s", r.KnowledgeSource)}
	if r.KnowledgeType != "" {
		fields = append(fields, fmt.Sprintf("knowledge_type: %s", r.KnowledgeType))
	}
	if r.PageType != "" {
		fields = append(fields, fmt.Sprintf("page_type: %s", r.PageType))
	}
	if r.Summary != "" {
		fields = append(fields, fmt.Sprintf("summary: %s", r.Summary))
	}
	if r.ProductName != nil && *r.ProductName != "" {
		fields = append(fields, fmt.Sprintf("product_name: %s", *r.ProductName))
	}
	if r.ProductID != nil && *r.ProductID != "" {
		fields = append(fields, fmt.Sprintf("product_id: %s", *r.ProductID))
	}
	if r.Category != nil && *r.Category != "" {
		fields = append(fields, fmt.Sprintf("category: %s", *r.Category))
	}
	if r.Price != nil {
		fields = append(fields, fmt.Sprintf("price: %s", strconv.FormatFloat(*r.Price, 'f', -1, 64)))
	}
	if r.Currency != nil && *r.Currency != "" {
		fields = append(fields, fmt.Sprintf("currency: %s", *r.Currency))
	}
	if r.IsAvailable != nil {
		fields = append(fields, fmt.Sprintf("is_available: %t", *r.IsAvailable))
	}

	metaLine := strings.Join(fields, ", ")
	if r.TextContent == "" {
		return metaLine
	}
	return metaLine + "\n\n" + r.TextContent
}
