package nodes

import (
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// Prompt variable names shared by the templates below
const (
	varQuestion     = "question"
	varHistory      = "conversation_history"
	varSchema       = "schema"
	varContext      = "context"
	varQuery        = "query"
	varErrorMessage = "error_message"
	varAnswer       = "answer"
)

func guardrailTemplate() prompt.ChatTemplate {
	system := `As an intelligent assistant, your primary objective is to decide whether a given question is related to
Wroclaw University of Science and Technology or to the university's own affairs (terminology, staff, courses, procedures).
If the question is about the university's specific terminology, workers, classes, syllabus, faculties or procedures, output "generate_cypher".
If it is general university knowledge, such as "Who is a dean?" or "What is a faculty?", or general world knowledge, output "end".
Consider the previous conversation when making your decision.
Respond only with the single word "end" or "generate_cypher".`

	user := `Previous conversation:
{conversation_history}

User question: {question}`

	return prompt.FromMessages(schema.FString,
		schema.SystemMessage(system),
		schema.UserMessage(user),
	)
}

func generateQueryTemplate() prompt.ChatTemplate {
	system := `Generate a Cypher query based on the given graph database schema, the user's question, and the previous conversation.
The query should answer the question when executed against a Neo4j database.
Important:
- The generated Cypher query must be valid syntax
- It must only read data and must work with the provided schema
- No natural language explanation, no markdown, just the Cypher query
- Consider the previous conversation when relevant`

	user := `Previous conversation:
{conversation_history}

Database schema:
{schema}

Question: {question}

Cypher query:`

	return prompt.FromMessages(schema.FString,
		schema.SystemMessage(system),
		schema.UserMessage(user),
	)
}

func correctQueryTemplate() prompt.ChatTemplate {
	system := `The Cypher query generated to answer the user's question has syntax or schema compatibility errors.
Correct the query so that it is valid for the provided schema.
Return ONLY the corrected Cypher query without any explanations or markdown.`

	user := `User question: {question}

Database schema:
{schema}

Query with errors:
{query}

Error message:
{error_message}

Corrected Cypher query:`

	return prompt.FromMessages(schema.FString,
		schema.SystemMessage(system),
		schema.UserMessage(user),
	)
}

func answerTemplate() prompt.ChatTemplate {
	system := `Answer the user's question based on the provided context and the previous conversation.
If no context is available, use your general knowledge.
Always respond in the language used by the user.`

	user := `Previous conversation:
{conversation_history}

Context: {context}
Question: {question}
Answer in the user's language:`

	return prompt.FromMessages(schema.FString,
		schema.SystemMessage(system),
		schema.UserMessage(user),
	)
}

func summaryTemplate() prompt.ChatTemplate {
	system := `Generate a summary of the conversation in 2-3 sentences. The summary replaces the previous one,
so keep every fact from the previous conversation that may matter for follow-up questions.`

	user := `Previous conversation:
{conversation_history}

User question:
{question}

Assistant response:
{answer}`

	return prompt.FromMessages(schema.FString,
		schema.SystemMessage(system),
		schema.UserMessage(user),
	)
}
