package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"loreweaver/internal/store"
)

func (c *Client) ListTimeline(ctx context.Context, projectID string) ([]store.TimelineEvent, error) {
	query := `
	SELECT id, project_id, sequence_index, location, participant_ids, summary, causal_prerequisites
	FROM timeline_events
	WHERE project_id = ?
	ORDER BY sequence_index ASC
	`

	rows, err := c.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing timeline: %w", err)
	}
	defer rows.Close()

	events := []store.TimelineEvent{}
	for rows.Next() {
		var event store.TimelineEvent
		var participantsJSON, prereqsJSON string
		err := rows.Scan(
			&event.ID,
			&event.ProjectID,
			&event.SequenceIndex,
			&event.Location,
			&participantsJSON,
			&event.Summary,
			&prereqsJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning timeline event: %w", err)
		}
		if err := json.Unmarshal([]byte(participantsJSON), &event.ParticipantIDs); err != nil {
			return nil, fmt.Errorf("unmarshaling participants: %w", err)
		}
		if err := json.Unmarshal([]byte(prereqsJSON), &event.CausalPrerequisites); err != nil {
			return nil, fmt.Errorf("unmarshaling causal prerequisites: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating timeline: %w", err)
	}

	return events, nil
}

func (c *Client) MaxSequenceIndex(ctx context.Context, projectID string) (int, error) {
	var max sql.NullInt64
	err := c.db.QueryRowContext(ctx,
		`SELECT MAX(sequence_index) FROM timeline_events WHERE project_id = ?`,
		projectID,
	).Scan(&max)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("reading max sequence index: %w", err)
	}
	return int(max.Int64), nil
}
