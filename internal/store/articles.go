package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/sorcerai/storm-mcp/internal/article"
)

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	decoder, _ = zstd.NewReader(nil)
)

// Article is a finished article. Body is stored zstd-compressed.
type Article struct {
	SwarmID   string          `json:"swarm_id"`
	Topic     string          `json:"topic"`
	Words     int             `json:"words"`
	Outline   article.Outline `json:"outline"`
	Body      string          `json:"body"`
	CreatedAt time.Time       `json:"created_at"`
}

func (s *Store) SaveArticle(a *Article) error {
	outline, err := json.Marshal(a.Outline)
	if err != nil {
		return fmt.Errorf("encode outline: %w", err)
	}
	body := encoder.EncodeAll([]byte(a.Body), nil)
	_, err = s.db.Exec(`
		INSERT INTO articles (swarm_id, topic, words, outline, body)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(swarm_id) DO UPDATE SET
			words = excluded.words,
			outline = excluded.outline,
			body = excluded.body`,
		a.SwarmID, a.Topic, article.CountWords(a.Body), string(outline), body)
	if err != nil {
		return fmt.Errorf("save article: %w", err)
	}
	return nil
}

// GetArticle returns nil without error when the run produced no article.
func (s *Store) GetArticle(swarmID string) (*Article, error) {
	var (
		a       Article
		outline sql.NullString
		body    []byte
	)
	err := s.db.QueryRow(`
		SELECT swarm_id, topic, words, outline, body, created_at
		FROM articles WHERE swarm_id = ?`, swarmID).
		Scan(&a.SwarmID, &a.Topic, &a.Words, &outline, &body, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get article: %w", err)
	}

	raw, err := decoder.DecodeAll(body, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress article: %w", err)
	}
	a.Body = string(raw)
	if outline.Valid {
		if err := json.Unmarshal([]byte(outline.String), &a.Outline); err != nil {
			return nil, fmt.Errorf("decode outline: %w", err)
		}
	}
	return &a, nil
}
