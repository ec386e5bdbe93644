package models

// KnowledgeChunk is one embedded passage of the knowledge base.
type KnowledgeChunk struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Source    string    `json:"source,omitempty"`
	Embedding []float32 `json:"-"`
	// Distance is only populated on query results; lower is closer.
	Distance float32 `json:"distance"`
}

// ToolInvocation records one capability call made during an agent turn.
type ToolInvocation struct {
	Name   string `json:"name"`
	Input  string `json:"input"`
	Output string `json:"output"`
}
