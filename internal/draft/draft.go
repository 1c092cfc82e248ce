// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package draft writes finished essays to disk as Markdown with YAML
// frontmatter.
// See docs/ARCHITECTURE § Output.
package draft

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/essay-engine/pkg/types"
)

const frontmatterDelim = "---\n"

// blankLines separates paragraphs: one or more empty (or whitespace) lines.
var blankLines = regexp.MustCompile(`\n[ \t]*\n+`)

// CountParagraphs returns the number of prose paragraphs in text. Markdown
// headings and horizontal rules are not counted.
func CountParagraphs(text string) int {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	n := 0
	for _, block := range blankLines.Split(strings.TrimSpace(text), -1) {
		block = strings.TrimSpace(block)
		if block == "" || isHeading(block) || isRule(block) {
			continue
		}
		n++
	}
	return n
}

func isHeading(block string) bool {
	return !strings.Contains(block, "\n") && strings.HasPrefix(block, "#")
}

func isRule(block string) bool {
	return block == "---" || block == "***" || block == "___"
}

// Meta builds the frontmatter for a finished session. Revisions counts the
// drafts written during the run.
func Meta(s *types.EssaySession) types.EssayMeta {
	return types.EssayMeta{
		SessionID:  s.ID,
		Task:       s.Task,
		Date:       s.UpdatedAt.Format("2006-01-02"),
		Revisions:  s.RevisionNumber - 1,
		Paragraphs: CountParagraphs(s.Draft),
		Sources:    len(s.Content),
	}
}

// Render returns the essay document: YAML frontmatter followed by the draft.
func Render(s *types.EssaySession) ([]byte, error) {
	meta, err := yaml.Marshal(Meta(s))
	if err != nil {
		return nil, fmt.Errorf("marshaling frontmatter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(frontmatterDelim)
	buf.Write(meta)
	buf.WriteString(frontmatterDelim)
	buf.WriteString("\n")
	buf.WriteString(strings.TrimSpace(s.Draft))
	buf.WriteString("\n")
	return buf.Bytes(), nil
}

// WriteEssay renders s to <dir>/<session-id>.md and returns the path.
// A session without a draft is an error.
func WriteEssay(dir string, s *types.EssaySession) (string, error) {
	if strings.TrimSpace(s.Draft) == "" {
		return "", fmt.Errorf("session %s has no draft", s.ID)
	}
	data, err := Render(s)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	path := filepath.Join(dir, s.ID+".md")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing essay: %w", err)
	}
	return path, nil
}

// ReadMeta parses the frontmatter of an essay file written by WriteEssay.
func ReadMeta(path string) (*types.EssayMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading essay: %w", err)
	}
	text := string(data)
	if !strings.HasPrefix(text, frontmatterDelim) {
		return nil, fmt.Errorf("%s: missing frontmatter", filepath.Base(path))
	}
	body, _, ok := strings.Cut(text[len(frontmatterDelim):], frontmatterDelim)
	if !ok {
		return nil, fmt.Errorf("%s: unterminated frontmatter", filepath.Base(path))
	}
	var meta types.EssayMeta
	if err := yaml.Unmarshal([]byte(body), &meta); err != nil {
		return nil, fmt.Errorf("parsing frontmatter: %w", err)
	}
	return &meta, nil
}
