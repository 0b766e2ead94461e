// Package prompts turns prioritized file changes into bounded review
// requests: one PromptUnit per file, or several for files that exceed the
// token budget.
package prompts

import (
	"fmt"
	"strings"

	"github.com/diffsentry/internal/budget"
	"github.com/diffsentry/pkg/models"
)

// Builder assembles prompt units under a per-unit token budget.
type Builder struct {
	maxUnitTokens int
}

// NewBuilder creates a builder. maxUnitTokens bounds the content portion of
// each unit; the fixed instruction rides on top.
func NewBuilder(maxUnitTokens int) *Builder {
	return &Builder{maxUnitTokens: maxUnitTokens}
}

// Build produces prompt units for the given changes, preserving the input
// file order and chunk order within each file.
func (b *Builder) Build(changes []models.FileChange) []models.PromptUnit {
	var units []models.PromptUnit

	for _, change := range changes {
		chunks := budget.Chunk(change.CleanedContent, b.maxUnitTokens)

		for i, chunk := range chunks {
			units = append(units, models.PromptUnit{
				Filename:   change.Filename,
				PromptText: b.render(change, chunk, i, len(chunks)),
				ChunkIndex: i,
				ChunkCount: len(chunks),
			})
		}
	}

	return units
}

func (b *Builder) render(change models.FileChange, content string, chunkIndex, chunkCount int) string {
	var sb strings.Builder

	sb.WriteString(systemInstruction)
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("File: %s\n", change.Filename))
	sb.WriteString(fmt.Sprintf("Language: %s\n", change.Language))
	sb.WriteString(fmt.Sprintf("Change: %s (+%d/-%d)\n", change.Status, change.Additions, change.Deletions))
	if chunkCount > 1 {
		sb.WriteString(fmt.Sprintf("Part %d of %d of this file.\n", chunkIndex+1, chunkCount))
	}
	if change.SecretSuspected {
		sb.WriteString(secretNotice)
		sb.WriteString("\n")
	}

	sb.WriteString("\nChanged code:\n```")
	if change.Language != models.LanguageUnknown {
		sb.WriteString(change.Language)
	}
	sb.WriteString("\n")
	sb.WriteString(content)
	sb.WriteString("\n```\n")

	return sb.String()
}
