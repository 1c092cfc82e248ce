// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// EssayMeta holds the YAML frontmatter written at the top of a finished essay.
type EssayMeta struct {
	// SessionID links the essay back to its checkpoint.
	SessionID string `json:"session_id" yaml:"session_id"`

	// Task is the essay topic.
	Task string `json:"task" yaml:"task"`

	// Date is the completion date in YYYY-MM-DD format.
	Date string `json:"date" yaml:"date"`

	// Revisions is the number of drafts written.
	Revisions int `json:"revisions" yaml:"revisions"`

	// Paragraphs is the number of body paragraphs found in the draft.
	Paragraphs int `json:"paragraphs" yaml:"paragraphs"`

	// Sources is the number of research snippets gathered.
	Sources int `json:"sources" yaml:"sources"`
}
