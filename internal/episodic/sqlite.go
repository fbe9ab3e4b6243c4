package episodic

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore keeps episodic records in a standalone sqlite database with
// embeddings as float32 blobs. Ranking is brute-force cosine over the
// project's records; corpus size is bounded by scene count, so a vector
// index would buy nothing at this scale.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	driverDSN, err := parseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing episodic DSN: %w", err)
	}

	db, err := sql.Open("sqlite", driverDSN)
	if err != nil {
		return nil, fmt.Errorf("opening episodic database: %w", err)
	}
	if driverDSN == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging episodic database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 30000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting pragma: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close(ctx context.Context) error {
	return s.db.Close()
}

func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS episodic_records (
		scene_id          TEXT PRIMARY KEY,
		project_id        TEXT NOT NULL,
		sequence_index    INTEGER NOT NULL,
		summary           TEXT NOT NULL,
		emotional_valence TEXT DEFAULT '',
		participant_ids   TEXT DEFAULT '[]',
		key_items         TEXT DEFAULT '[]',
		embedding         BLOB NOT NULL,
		created_at        TEXT DEFAULT (datetime('now'))
	);
	CREATE INDEX IF NOT EXISTS idx_episodic_project_seq ON episodic_records (project_id, sequence_index);
	`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensuring episodic schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Add(ctx context.Context, r Record) error {
	if len(r.Embedding) == 0 {
		return fmt.Errorf("adding episodic record: embedding is required")
	}

	participantsJSON, err := json.Marshal(orEmpty(r.ParticipantIDs))
	if err != nil {
		return fmt.Errorf("marshaling participants: %w", err)
	}
	itemsJSON, err := json.Marshal(orEmpty(r.KeyItems))
	if err != nil {
		return fmt.Errorf("marshaling key items: %w", err)
	}

	query := `
	INSERT INTO episodic_records (scene_id, project_id, sequence_index, summary, emotional_valence, participant_ids, key_items, embedding)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		r.SceneID,
		r.ProjectID,
		r.SequenceIndex,
		r.Summary,
		r.EmotionalValence,
		string(participantsJSON),
		string(itemsJSON),
		encodeVector(r.Embedding),
	)
	if err != nil {
		return fmt.Errorf("adding episodic record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Search(ctx context.Context, projectID string, query []float32, k int, excludeSeq []int) ([]Match, error) {
	if k <= 0 {
		return []Match{}, nil
	}

	records, err := s.ListForProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	excluded := make(map[int]struct{}, len(excludeSeq))
	for _, seq := range excludeSeq {
		excluded[seq] = struct{}{}
	}

	matches := make([]Match, 0, len(records))
	for _, record := range records {
		if _, skip := excluded[record.SequenceIndex]; skip {
			continue
		}
		matches = append(matches, Match{
			Record:     record,
			Similarity: cosine(query, record.Embedding),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].SequenceIndex > matches[j].SequenceIndex
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (s *SQLiteStore) DeleteByScene(ctx context.Context, projectID, sceneID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM episodic_records WHERE project_id = ? AND scene_id = ?`,
		projectID, sceneID,
	)
	if err != nil {
		return fmt.Errorf("deleting episodic record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ShiftAfter(ctx context.Context, projectID string, removedSeq int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE episodic_records SET sequence_index = sequence_index - 1 WHERE project_id = ? AND sequence_index > ?`,
		projectID, removedSeq,
	)
	if err != nil {
		return fmt.Errorf("shifting episodic records: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CountForProject(ctx context.Context, projectID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM episodic_records WHERE project_id = ?`,
		projectID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting episodic records: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) ListForProject(ctx context.Context, projectID string) ([]Record, error) {
	query := `
	SELECT scene_id, project_id, sequence_index, summary, emotional_valence, participant_ids, key_items, embedding, created_at
	FROM episodic_records
	WHERE project_id = ?
	ORDER BY sequence_index ASC
	`

	rows, err := s.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing episodic records: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var record Record
		var participantsJSON, itemsJSON, createdAt string
		var blob []byte
		err := rows.Scan(
			&record.SceneID,
			&record.ProjectID,
			&record.SequenceIndex,
			&record.Summary,
			&record.EmotionalValence,
			&participantsJSON,
			&itemsJSON,
			&blob,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning episodic record: %w", err)
		}
		if err := json.Unmarshal([]byte(participantsJSON), &record.ParticipantIDs); err != nil {
			return nil, fmt.Errorf("unmarshaling participants: %w", err)
		}
		if err := json.Unmarshal([]byte(itemsJSON), &record.KeyItems); err != nil {
			return nil, fmt.Errorf("unmarshaling key items: %w", err)
		}
		record.Embedding, err = decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding: %w", err)
		}
		if ts, err := time.Parse("2006-01-02 15:04:05", createdAt); err == nil {
			record.CreatedAt = ts
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating episodic records: %w", err)
	}

	return records, nil
}

func (s *SQLiteStore) ReplaceSummary(ctx context.Context, projectID, sceneID, summary string, embedding []float32) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE episodic_records SET summary = ?, embedding = ? WHERE project_id = ? AND scene_id = ?`,
		summary, encodeVector(embedding), projectID, sceneID,
	)
	if err != nil {
		return fmt.Errorf("replacing episodic summary: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("replacing episodic summary: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("replacing episodic summary: record not found")
	}
	return nil
}

func orEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// parseDSN mirrors the structured store's sqlite scheme handling so both
// databases share one DSN convention.
func parseDSN(dsn string) (string, error) {
	if !strings.HasPrefix(dsn, "sqlite://") {
		return "", fmt.Errorf("invalid sqlite DSN scheme, expected sqlite://")
	}

	rest := strings.TrimPrefix(dsn, "sqlite://")

	if rest == ":memory:" {
		return ":memory:", nil
	}
	if strings.HasPrefix(rest, "/") || strings.HasPrefix(rest, "./") {
		return rest, nil
	}

	unescaped, err := url.PathUnescape(rest)
	if err != nil {
		return "", fmt.Errorf("unescaping path: %w", err)
	}
	rest = unescaped

	if !filepath.IsAbs(rest) {
		rest = "./" + rest
	}
	return rest, nil
}
