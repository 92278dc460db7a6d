package model

import "time"

// TitleMaxLen is the display length a conversation title is truncated to.
// The title is derived once from the first user prompt and never rewritten.
const TitleMaxLen = 80

// Conversation is an append-only ordered log of prompts and responses.
type Conversation struct {
	ID        int64     `json:"id"`
	Title     *string   `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single entry in a conversation. Only assistant messages carry
// the source/artifact/preview/format fields.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	SourceCode     *string   `json:"source_code,omitempty"` // generated OpenSCAD source
	ArtifactURL    *string   `json:"artifact_url,omitempty"`
	PreviewURL     *string   `json:"preview_url,omitempty"`
	Format         *string   `json:"format,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// HasSource reports whether the message carries generated source.
func (m *Message) HasSource() bool {
	return m.Role == RoleAssistant && m.SourceCode != nil && *m.SourceCode != ""
}

// IsPendingApproval reports whether the message represents a preview awaiting
// an approve/reject decision: a preview reference without an artifact.
func (m *Message) IsPendingApproval() bool {
	return m.Role == RoleAssistant && m.PreviewURL != nil && *m.PreviewURL != "" &&
		(m.ArtifactURL == nil || *m.ArtifactURL == "")
}

// TitleFromPrompt derives a conversation title from the first user prompt,
// truncated to TitleMaxLen characters.
func TitleFromPrompt(prompt string) string {
	runes := []rune(prompt)
	if len(runes) <= TitleMaxLen {
		return prompt
	}
	return string(runes[:TitleMaxLen])
}
