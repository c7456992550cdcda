package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leadgraph/leadgraph/internal/engine/store"
)

// TargetKind names the kind of row a change record tracks.
type TargetKind string

const (
	TargetEntity TargetKind = "entity"
	TargetFacet  TargetKind = "facet_value"
)

// ChangeRecord is one immutable version entry for a target. Version
// numbers are gapless per target, starting at 1.
type ChangeRecord struct {
	ID         uuid.UUID
	TargetKind TargetKind
	TargetID   uuid.UUID
	Version    int
	Diff       Diff
	ChangedBy  string
	Reason     string
	IsUndo     bool
	CreatedAt  time.Time
}

// UndoResult reports what an undo reverted.
type UndoResult struct {
	RevertedFields []string
	NewVersion     int
}

// fieldAccessor reads and patches the mutable fields of one target
// kind inside a transaction.
type fieldAccessor struct {
	get   func(ctx context.Context, q store.DBTX, id uuid.UUID) (map[string]interface{}, error)
	patch func(ctx context.Context, q store.DBTX, id uuid.UUID, fields map[string]interface{}) error
}

// Tracker records field-level changes as versioned diffs and undoes
// the most recent one on request. Every mutation and its change record
// commit in the same transaction.
type Tracker struct {
	store     *store.Store
	tx        *store.TxManager
	logger    *zap.Logger
	accessors map[TargetKind]fieldAccessor
}

// NewTracker creates a tracker over the given store.
func NewTracker(st *store.Store, tx *store.TxManager, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		store:  st,
		tx:     tx,
		logger: logger,
		accessors: map[TargetKind]fieldAccessor{
			TargetEntity: {get: st.GetEntityFields, patch: st.UpdateEntityFields},
			TargetFacet:  {get: st.GetFacetFields, patch: st.UpdateFacetFields},
		},
	}
}

func (t *Tracker) accessor(kind TargetKind) (fieldAccessor, error) {
	acc, ok := t.accessors[kind]
	if !ok {
		return fieldAccessor{}, fmt.Errorf("unknown target kind %q", kind)
	}
	return acc, nil
}

// RecordChange applies a field patch to the target and appends the
// resulting diff as the next version, atomically. A patch that changes
// nothing writes no row and returns a nil record.
func (t *Tracker) RecordChange(ctx context.Context, kind TargetKind, targetID uuid.UUID, fields map[string]interface{}, changedBy, reason string) (*ChangeRecord, error) {
	acc, err := t.accessor(kind)
	if err != nil {
		return nil, err
	}

	var record *ChangeRecord
	err = t.tx.WithTransaction(ctx, func(tx *sql.Tx) error {
		before, err := acc.get(ctx, tx, targetID)
		if err != nil {
			return err
		}

		after := make(map[string]interface{}, len(before))
		for k, v := range before {
			after[k] = v
		}
		for k, v := range fields {
			after[k] = v
		}

		diff := ComputeDiff(before, after)
		if len(diff) == 0 {
			return nil
		}

		if err := acc.patch(ctx, tx, targetID, diff.NewValues()); err != nil {
			return err
		}

		record, err = t.appendRecord(ctx, tx, kind, targetID, diff, changedBy, reason, false)
		return err
	})
	if err != nil {
		return nil, err
	}

	if record != nil {
		t.logger.Debug("change recorded",
			zap.String("target_kind", string(kind)),
			zap.String("target_id", targetID.String()),
			zap.Int("version", record.Version))
	}
	return record, nil
}

// RecordEntityChange applies a field patch to an entity and versions it.
func (t *Tracker) RecordEntityChange(ctx context.Context, entityID uuid.UUID, fields map[string]interface{}, changedBy, reason string) (*ChangeRecord, error) {
	return t.RecordChange(ctx, TargetEntity, entityID, fields, changedBy, reason)
}

// RecordFacetChange applies a field patch to a facet value and versions it.
func (t *Tracker) RecordFacetChange(ctx context.Context, facetValueID uuid.UUID, fields map[string]interface{}, changedBy, reason string) (*ChangeRecord, error) {
	return t.RecordChange(ctx, TargetFacet, facetValueID, fields, changedBy, reason)
}

// UndoLastChange reverts the latest recorded change of the target. The
// undo itself is appended as a new version carrying the inverted diff,
// so the history stays append-only and the undo is undoable.
//
// Before reverting, every field in the latest diff is checked against
// the live row. A mismatch means an untracked write happened in
// between and the undo is refused.
func (t *Tracker) UndoLastChange(ctx context.Context, kind TargetKind, targetID uuid.UUID, changedBy string) (*UndoResult, error) {
	acc, err := t.accessor(kind)
	if err != nil {
		return nil, err
	}

	var result *UndoResult
	err = t.tx.WithTransaction(ctx, func(tx *sql.Tx) error {
		latest, err := t.latestRecord(ctx, tx, kind, targetID)
		if err != nil {
			return err
		}
		if latest == nil {
			return fmt.Errorf("%w: %s %s", ErrNothingToUndo, kind, targetID)
		}

		live, err := acc.get(ctx, tx, targetID)
		if err != nil {
			return err
		}
		for field, change := range latest.Diff {
			if !valuesEqual(live[field], change.New) {
				return fmt.Errorf("%w: field %q", ErrConcurrentModification, field)
			}
		}

		inverted := latest.Diff.Invert()
		if err := acc.patch(ctx, tx, targetID, inverted.NewValues()); err != nil {
			return err
		}

		record, err := t.appendRecord(ctx, tx, kind, targetID, inverted, changedBy,
			fmt.Sprintf("undo of version %d", latest.Version), true)
		if err != nil {
			return err
		}

		result = &UndoResult{
			RevertedFields: inverted.Fields(),
			NewVersion:     record.Version,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// appendRecord inserts the next version row for the target. The version
// is computed inside the caller's transaction; the unique constraint on
// (target_kind, target_id, version_number) catches racing writers.
func (t *Tracker) appendRecord(ctx context.Context, tx *sql.Tx, kind TargetKind, targetID uuid.UUID, diff Diff, changedBy, reason string, isUndo bool) (*ChangeRecord, error) {
	payload, err := json.Marshal(diff)
	if err != nil {
		return nil, fmt.Errorf("failed to encode diff: %w", err)
	}

	record := &ChangeRecord{
		TargetKind: kind,
		TargetID:   targetID,
		Diff:       diff,
		ChangedBy:  changedBy,
		Reason:     reason,
		IsUndo:     isUndo,
	}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO change_records
		   (target_kind, target_id, version_number, diff, changed_by, reason, is_undo)
		 VALUES ($1, $2,
		   (SELECT COALESCE(MAX(version_number), 0) + 1
		      FROM change_records WHERE target_kind = $1 AND target_id = $2),
		   $3, $4, $5, $6)
		 RETURNING id, version_number, created_at`,
		string(kind), targetID, payload, changedBy, reason, isUndo,
	).Scan(&record.ID, &record.Version, &record.CreatedAt)
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	return record, nil
}

const recordColumns = `id, target_kind, target_id, version_number, diff,
	changed_by, reason, is_undo, created_at`

// latestRecord loads the highest-version record for a target, locking
// it for the duration of the transaction. Nil means no history.
func (t *Tracker) latestRecord(ctx context.Context, tx *sql.Tx, kind TargetKind, targetID uuid.UUID) (*ChangeRecord, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+recordColumns+`
		 FROM change_records
		 WHERE target_kind = $1 AND target_id = $2
		 ORDER BY version_number DESC
		 LIMIT 1
		 FOR UPDATE`,
		string(kind), targetID)

	record, err := scanRecord(row)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*ChangeRecord, error) {
	var record ChangeRecord
	var payload []byte
	err := row.Scan(&record.ID, &record.TargetKind, &record.TargetID,
		&record.Version, &payload, &record.ChangedBy, &record.Reason,
		&record.IsUndo, &record.CreatedAt)
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	if err := json.Unmarshal(payload, &record.Diff); err != nil {
		return nil, fmt.Errorf("corrupt diff on change record %s: %w", record.ID, err)
	}
	return &record, nil
}

// GetChangeHistory returns a target's change records newest first.
func (t *Tracker) GetChangeHistory(ctx context.Context, kind TargetKind, targetID uuid.UUID, limit, offset int) ([]*ChangeRecord, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := t.store.DB().QueryContext(ctx,
		`SELECT `+recordColumns+`
		 FROM change_records
		 WHERE target_kind = $1 AND target_id = $2
		 ORDER BY version_number DESC
		 LIMIT $3 OFFSET $4`,
		string(kind), targetID, limit, offset)
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// GetRecentChanges returns the latest records written by one actor
// across all targets.
func (t *Tracker) GetRecentChanges(ctx context.Context, changedBy string, limit int) ([]*ChangeRecord, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := t.store.DB().QueryContext(ctx,
		`SELECT `+recordColumns+`
		 FROM change_records
		 WHERE changed_by = $1
		 ORDER BY created_at DESC, version_number DESC
		 LIMIT $2`,
		changedBy, limit)
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

func collectRecords(rows *sql.Rows) ([]*ChangeRecord, error) {
	var records []*ChangeRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, store.ConvertDBError(err)
	}
	return records, nil
}

// ReconstructAt rebuilds the target's tracked fields as they were just
// after the given version, by walking the live state backwards through
// every newer diff.
func (t *Tracker) ReconstructAt(ctx context.Context, kind TargetKind, targetID uuid.UUID, version int) (map[string]interface{}, error) {
	acc, err := t.accessor(kind)
	if err != nil {
		return nil, err
	}

	live, err := acc.get(ctx, t.store.DB(), targetID)
	if err != nil {
		return nil, err
	}
	state := make(map[string]interface{}, len(live))
	for k, v := range live {
		state[k] = normalize(v)
	}

	rows, err := t.store.DB().QueryContext(ctx,
		`SELECT `+recordColumns+`
		 FROM change_records
		 WHERE target_kind = $1 AND target_id = $2 AND version_number > $3
		 ORDER BY version_number DESC`,
		string(kind), targetID, version)
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	defer rows.Close()

	records, err := collectRecords(rows)
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		for field, change := range record.Diff {
			state[field] = change.Old
		}
	}
	return state, nil
}
