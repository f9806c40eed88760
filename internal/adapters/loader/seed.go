package loader

import (
	_ "embed"

	"github.com/0xcro3dile/ragtutor/internal/domain/entities"
)

//go:embed seed/course.yaml
var courseYAML []byte

// SeedChunks returns the built-in course knowledge loaded at startup.
func SeedChunks() ([]entities.KnowledgeChunk, error) {
	return decodeChunks(courseYAML)
}
