package vectordb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/0xcro3dile/ragtutor/internal/domain/entities"
	"github.com/0xcro3dile/ragtutor/internal/domain/ports"
)

// SQLiteStore persists learned knowledge chunks so they survive restarts.
type SQLiteStore struct {
	mu sync.Mutex
	db *sql.DB
}

var _ ports.KnowledgePersister = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/knowledge.db"
	}

	// Ensure data directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return store, nil
}

// initSchema creates the necessary tables.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS knowledge (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		lesson TEXT NOT NULL,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		context TEXT,
		parent_document TEXT,
		type TEXT NOT NULL,
		tags TEXT NOT NULL,
		source_url TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_knowledge_source_url ON knowledge(source_url);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save upserts a chunk.
func (s *SQLiteStore) Save(ctx context.Context, chunk entities.KnowledgeChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tags, err := json.Marshal(chunk.Tags)
	if err != nil {
		return fmt.Errorf("encoding tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO knowledge (id, lesson, title, content, context, parent_document, type, tags, source_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			lesson = excluded.lesson,
			title = excluded.title,
			content = excluded.content,
			context = excluded.context,
			parent_document = excluded.parent_document,
			type = excluded.type,
			tags = excluded.tags,
			source_url = excluded.source_url
	`,
		chunk.ID,
		chunk.Lesson,
		chunk.Title,
		chunk.Content,
		chunk.Context,
		chunk.ParentDocument,
		string(chunk.Type),
		string(tags),
		chunk.SourceURL,
	)
	if err != nil {
		return fmt.Errorf("inserting chunk: %w", err)
	}
	return nil
}

// Delete removes a chunk by ID. Deleting a missing chunk is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM knowledge WHERE id = ?", id)
	return err
}

// LoadAll returns every stored chunk in insertion order.
func (s *SQLiteStore) LoadAll(ctx context.Context) ([]entities.KnowledgeChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, lesson, title, content, context, parent_document, type, tags, source_url
		FROM knowledge
		ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("querying knowledge: %w", err)
	}
	defer rows.Close()

	var chunks []entities.KnowledgeChunk
	for rows.Next() {
		var c entities.KnowledgeChunk
		var ctxText, parent, sourceURL sql.NullString
		var chunkType, tagsJSON string

		err := rows.Scan(&c.ID, &c.Lesson, &c.Title, &c.Content, &ctxText, &parent, &chunkType, &tagsJSON, &sourceURL)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		if err := json.Unmarshal([]byte(tagsJSON), &c.Tags); err != nil {
			continue // Skip corrupted rows
		}
		c.Context = ctxText.String
		c.ParentDocument = parent.String
		c.SourceURL = sourceURL.String
		c.Type = entities.ChunkType(chunkType)
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// Count returns the number of stored chunks.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM knowledge").Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
