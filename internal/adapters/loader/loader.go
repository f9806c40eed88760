// Package loader provides knowledge loading adapters.
package loader

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/0xcro3dile/ragtutor/internal/domain/entities"
	"github.com/0xcro3dile/ragtutor/internal/domain/ports"
)

// ErrUnsupportedFile is returned for extensions no loader handles.
var ErrUnsupportedFile = errors.New("unsupported knowledge file")

// maxSummary bounds the short-form content derived from a markdown note.
const maxSummary = 400

// knowledgeFile is the on-disk YAML layout.
type knowledgeFile struct {
	Chunks []entities.KnowledgeChunk `yaml:"chunks"`
}

// YAMLLoader loads curated knowledge chunks from YAML files.
type YAMLLoader struct{}

var _ ports.KnowledgeLoader = (*YAMLLoader)(nil)

// NewYAMLLoader creates a new YAML knowledge loader.
func NewYAMLLoader() *YAMLLoader {
	return &YAMLLoader{}
}

// Load reads every chunk declared in the file.
func (l *YAMLLoader) Load(ctx context.Context, path string) ([]entities.KnowledgeChunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	chunks, err := decodeChunks(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return chunks, nil
}

// SupportedExtensions returns file extensions this loader handles.
func (l *YAMLLoader) SupportedExtensions() []string {
	return []string{".yaml", ".yml"}
}

func decodeChunks(data []byte) ([]entities.KnowledgeChunk, error) {
	var file knowledgeFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decoding knowledge: %w", err)
	}

	seen := make(map[string]bool, len(file.Chunks))
	for i := range file.Chunks {
		c := &file.Chunks[i]
		c.ID = strings.TrimSpace(c.ID)
		if c.ID == "" || strings.TrimSpace(c.Title) == "" {
			return nil, fmt.Errorf("chunk %d: id and title are required", i)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("chunk %s: duplicate id", c.ID)
		}
		seen[c.ID] = true

		switch c.Type {
		case "":
			c.Type = entities.ChunkConcept
		case entities.ChunkConcept, entities.ChunkTechnique, entities.ChunkArchitecture:
		default:
			return nil, fmt.Errorf("chunk %s: invalid type %q", c.ID, c.Type)
		}
	}
	return file.Chunks, nil
}

// MarkdownLoader turns a markdown or text note into a single chunk.
type MarkdownLoader struct{}

var _ ports.KnowledgeLoader = (*MarkdownLoader)(nil)

// NewMarkdownLoader creates a new markdown note loader.
func NewMarkdownLoader() *MarkdownLoader {
	return &MarkdownLoader{}
}

// Load reads a note. The first heading becomes the title, the first
// paragraph the content and the whole note the parent document.
func (l *MarkdownLoader) Load(ctx context.Context, path string) ([]entities.KnowledgeChunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, nil
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	title, summary := scanNote(text)
	if title == "" {
		title = name
	}

	return []entities.KnowledgeChunk{{
		ID:             "note-" + generateDocID(path),
		Lesson:         "Notes",
		Title:          title,
		Content:        summary,
		ParentDocument: text,
		Type:           entities.ChunkConcept,
		Tags:           []string{strings.ToLower(name)},
	}}, nil
}

// SupportedExtensions returns file extensions this loader handles.
func (l *MarkdownLoader) SupportedExtensions() []string {
	return []string{".md", ".markdown", ".txt"}
}

func scanNote(text string) (title, summary string) {
	var para []string
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "#") {
			if title == "" {
				title = strings.TrimSpace(strings.TrimLeft(line, "#"))
			}
			if len(para) > 0 {
				break
			}
			continue
		}
		if line == "" {
			if len(para) > 0 {
				break
			}
			continue
		}
		para = append(para, line)
	}

	summary = strings.Join(para, " ")
	if r := []rune(summary); len(r) > maxSummary {
		summary = string(r[:maxSummary])
	}
	return title, summary
}

// MultiLoader combines multiple loaders.
type MultiLoader struct {
	loaders map[string]ports.KnowledgeLoader
}

var _ ports.KnowledgeLoader = (*MultiLoader)(nil)

// NewMultiLoader creates a loader that handles YAML and markdown files.
func NewMultiLoader() *MultiLoader {
	m := &MultiLoader{loaders: make(map[string]ports.KnowledgeLoader)}
	for _, l := range []ports.KnowledgeLoader{NewYAMLLoader(), NewMarkdownLoader()} {
		for _, ext := range l.SupportedExtensions() {
			m.loaders[ext] = l
		}
	}
	return m
}

// Load dispatches to the appropriate loader based on extension.
func (m *MultiLoader) Load(ctx context.Context, path string) ([]entities.KnowledgeChunk, error) {
	ext := strings.ToLower(filepath.Ext(path))
	l, ok := m.loaders[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, path)
	}
	return l.Load(ctx, path)
}

// SupportedExtensions returns all supported extensions.
func (m *MultiLoader) SupportedExtensions() []string {
	exts := make([]string, 0, len(m.loaders))
	for ext := range m.loaders {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}

// generateDocID creates a deterministic ID for a document.
func generateDocID(path string) string {
	hash := sha256.Sum256([]byte(path))
	return hex.EncodeToString(hash[:8])
}
