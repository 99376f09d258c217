// Package storage persists per-interaction scores and the frames the robot
// annotated, backed by sqlite.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/interactive.eval/internal/fault"
	"github.com/banshee-data/interactive.eval/internal/monitoring"
	"github.com/banshee-data/interactive.eval/internal/report"
)

// Store wraps the results database.
type Store struct {
	*sql.DB
	path string
}

var pragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"temp_store(MEMORY)",
	"foreign_keys(ON)",
}

// Open opens or creates the database at path and migrates it to the latest
// schema. Every pooled connection gets the same pragmas.
func Open(path string) (*Store, error) {
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, fault.Errorf(fault.ErrSetup, "open %s: %v", path, err)
	}
	s := &Store{DB: db, path: path}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, fault.Errorf(fault.ErrSetup, "%v", err)
	}
	monitoring.Opsf("opened results database %s", path)
	return s, nil
}

// Path returns the file the store was opened on.
func (s *Store) Path() string { return s.path }

// Interaction is the full score grid of one submission, flattened as
// parallel slices.
type Interaction struct {
	SessionID   string
	Sequence    string
	ScribbleIdx int
	Interaction int
	Timing      float64
	ObjectIDs   []int
	Frames      []int
	Jaccard     []float64
	Contour     []float64
}

func (in Interaction) validate() error {
	n := len(in.Jaccard)
	if len(in.Contour) != n || len(in.ObjectIDs) != n || len(in.Frames) != n {
		return fault.Errorf(fault.ErrInvalidInput, "jaccard, contour, frames and object ids must have the same length")
	}
	if n == 0 {
		return fault.Errorf(fault.ErrInvalidInput, "no scores to store")
	}
	for i := range in.Jaccard {
		if in.Jaccard[i] < 0 || in.Jaccard[i] > 1 {
			return fault.Errorf(fault.ErrInvalidInput, "jaccard value %v outside [0,1]", in.Jaccard[i])
		}
		if in.Contour[i] < 0 || in.Contour[i] > 1 {
			return fault.Errorf(fault.ErrInvalidInput, "contour value %v outside [0,1]", in.Contour[i])
		}
	}
	if in.Interaction < 1 {
		return fault.Errorf(fault.ErrInvalidInput, "interaction %d must be positive", in.Interaction)
	}
	return nil
}

// StoreInteraction records the scores of one interaction. An interaction
// may only be stored once and only after its predecessor.
func (s *Store) StoreInteraction(ctx context.Context, in Interaction) error {
	if err := in.validate(); err != nil {
		return err
	}
	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	exists := func(interaction int) (bool, error) {
		var n int
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM interaction_results
			WHERE session_id = ? AND sequence = ? AND scribble_idx = ? AND interaction = ?`,
			in.SessionID, in.Sequence, in.ScribbleIdx, interaction).Scan(&n)
		return n > 0, err
	}
	dup, err := exists(in.Interaction)
	if err != nil {
		return err
	}
	if dup {
		return fmt.Errorf("%w: for %s and scribble %d a result for interaction %d already exists",
			fault.ErrConsistency, in.Sequence, in.ScribbleIdx, in.Interaction)
	}
	if in.Interaction > 1 {
		prev, err := exists(in.Interaction - 1)
		if err != nil {
			return err
		}
		if !prev {
			return fmt.Errorf("%w: for %s and scribble %d there is no result for previous interaction %d",
				fault.ErrConsistency, in.Sequence, in.ScribbleIdx, in.Interaction-1)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO interaction_results
			(session_id, sequence, scribble_idx, interaction, object_id, frame, jaccard, contour, j_and_f, timing)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i := range in.Jaccard {
		jf := 0.5*in.Jaccard[i] + 0.5*in.Contour[i]
		if _, err := stmt.ExecContext(ctx, in.SessionID, in.Sequence, in.ScribbleIdx, in.Interaction,
			in.ObjectIDs[i], in.Frames[i], in.Jaccard[i], in.Contour[i], jf, in.Timing); err != nil {
			return fmt.Errorf("insert result: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	monitoring.Diagf("stored %d results for %s/%03d interaction %d", len(in.Jaccard), in.Sequence, in.ScribbleIdx, in.Interaction)
	return nil
}

// Report returns every row stored for sessionID in insertion order.
func (s *Store) Report(ctx context.Context, sessionID string) ([]report.Row, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT session_id, sequence, scribble_idx, interaction, object_id, frame, jaccard, contour, j_and_f, timing
		FROM interaction_results WHERE session_id = ? ORDER BY result_id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []report.Row{}
	for rows.Next() {
		var r report.Row
		if err := rows.Scan(&r.SessionID, &r.Sequence, &r.ScribbleIdx, &r.Interaction, &r.ObjectID,
			&r.Frame, &r.Jaccard, &r.Contour, &r.JAndF, &r.Timing); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AnnotatedFrames returns the distinct frames already annotated for a
// sample in ascending order. Once every one of numFrames has been used the
// history is reported as empty so selection starts over.
func (s *Store) AnnotatedFrames(ctx context.Context, sessionID, sequence string, scribbleIdx, numFrames int) ([]int, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT DISTINCT frame FROM annotated_frames
		WHERE session_id = ? AND sequence = ? AND scribble_idx = ?
		ORDER BY frame`, sessionID, sequence, scribbleIdx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var frames []int
	for rows.Next() {
		var f int
		if err := rows.Scan(&f); err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(frames) == numFrames {
		return nil, nil
	}
	return frames, nil
}

// StoreAnnotatedFrame records the frame chosen for the next scribble.
// override marks frames picked from caller supplied candidates.
func (s *Store) StoreAnnotatedFrame(ctx context.Context, sessionID, sequence string, scribbleIdx, frame int, override bool) error {
	_, err := s.ExecContext(ctx, `
		INSERT INTO annotated_frames (session_id, sequence, scribble_idx, frame, override)
		VALUES (?, ?, ?, ?, ?)`, sessionID, sequence, scribbleIdx, frame, override)
	return err
}

// Session is one evaluation run as seen by the server.
type Session struct {
	ID       string `json:"session_key"`
	UserKey  string `json:"user_key"`
	Subset   string `json:"subset"`
	Finished bool   `json:"finished"`
}

// RecordSession registers a session the first time it is seen.
func (s *Store) RecordSession(ctx context.Context, id, userKey, subset string) error {
	_, err := s.ExecContext(ctx, `
		INSERT INTO sessions (session_id, user_key, subset) VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO NOTHING`, id, userKey, subset)
	return err
}

// FinishSession stamps the session as finished.
func (s *Store) FinishSession(ctx context.Context, id string) error {
	_, err := s.ExecContext(ctx, `
		UPDATE sessions SET finished_at = CURRENT_TIMESTAMP
		WHERE session_id = ? AND finished_at IS NULL`, id)
	return err
}

// Sessions lists sessions, most recent first. An empty userKey lists all.
func (s *Store) Sessions(ctx context.Context, userKey string) ([]Session, error) {
	query := `SELECT session_id, user_key, subset, finished_at IS NOT NULL FROM sessions`
	var args []any
	if userKey != "" {
		query += ` WHERE user_key = ?`
		args = append(args, userKey)
	}
	query += ` ORDER BY started_at DESC, rowid DESC`
	rows, err := s.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var ses Session
		if err := rows.Scan(&ses.ID, &ses.UserKey, &ses.Subset, &ses.Finished); err != nil {
			return nil, err
		}
		out = append(out, ses)
	}
	return out, rows.Err()
}

// DeleteSession drops every row of a session.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, table := range []string{"interaction_results", "annotated_frames", "sessions"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE session_id = ?", id); err != nil {
			return fmt.Errorf("delete from %s: %w", table, err)
		}
	}
	return tx.Commit()
}
