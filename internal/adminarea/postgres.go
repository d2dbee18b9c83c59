package adminarea

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "civreg/pkg/domain"
	"civreg/pkg/requestcontext"
)

// upsertChunkSize bounds a single upsert statement. Area syncs from the
// statistical office arrive as full national dumps, so writes are chunked.
const upsertChunkSize = 10_000

// Postgres persists the administrative hierarchy in PostgreSQL.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed area store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) SetAreas(ctx context.Context, areas []Area) error {
	for start := 0; start < len(areas); start += upsertChunkSize {
		end := start + upsertChunkSize
		if end > len(areas) {
			end = len(areas)
		}
		if err := s.upsertChunk(ctx, areas[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// upsertChunk writes one bounded batch. COALESCE keeps the stored value
// whenever the incoming one is null, so partial updates never blank
// name/parentId/validUntil/externalId.
func (s *Postgres) upsertChunk(ctx context.Context, areas []Area) error {
	if len(areas) == 0 {
		return nil
	}

	placeholders := make([]string, 0, len(areas))
	args := make([]any, 0, len(areas)*5)
	for i, area := range areas {
		base := i * 5
		placeholders = append(placeholders,
			fmt.Sprintf("($%d, $%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4, base+5))
		args = append(args,
			uuid.UUID(area.ID),
			nullableAreaID(area.ParentID),
			nullableString(area.Name),
			nullableTime(area.ValidUntil),
			nullableString(area.ExternalID),
		)
	}

	query := fmt.Sprintf(`
		INSERT INTO administrative_areas (id, parent_id, name, valid_until, external_id)
		VALUES %s
		ON CONFLICT (id) DO UPDATE SET
			parent_id   = COALESCE(EXCLUDED.parent_id, administrative_areas.parent_id),
			name        = COALESCE(EXCLUDED.name, administrative_areas.name),
			valid_until = COALESCE(EXCLUDED.valid_until, administrative_areas.valid_until),
			external_id = COALESCE(EXCLUDED.external_id, administrative_areas.external_id)`,
		strings.Join(placeholders, ", "))

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert administrative areas: %w", err)
	}
	return nil
}

func (s *Postgres) LeafIDs(ctx context.Context) ([]id.AreaID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id
		FROM administrative_areas a
		WHERE NOT EXISTS (
			SELECT 1 FROM administrative_areas c WHERE c.parent_id = a.id
		)
		ORDER BY a.id`)
	if err != nil {
		return nil, fmt.Errorf("query leaf areas: %w", err)
	}
	defer rows.Close()

	var leaves []id.AreaID
	for rows.Next() {
		var areaID uuid.UUID
		if err := rows.Scan(&areaID); err != nil {
			return nil, fmt.Errorf("scan leaf area id: %w", err)
		}
		leaves = append(leaves, id.AreaID(areaID))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query leaf areas: %w", err)
	}
	return leaves, nil
}

func (s *Postgres) List(ctx context.Context, filter ListFilter) ([]Area, error) {
	query := `SELECT id, parent_id, name, valid_until, external_id FROM administrative_areas`
	var conditions []string
	var args []any

	if len(filter.IDs) > 0 {
		ids := make([]uuid.UUID, len(filter.IDs))
		for i, areaID := range filter.IDs {
			ids[i] = uuid.UUID(areaID)
		}
		args = append(args, pq.Array(ids))
		conditions = append(conditions, fmt.Sprintf("id = ANY($%d)", len(args)))
	}
	if filter.IsActive != nil {
		args = append(args, requestcontext.Now(ctx))
		condition := fmt.Sprintf("(valid_until IS NULL OR valid_until > $%d)", len(args))
		if !*filter.IsActive {
			condition = fmt.Sprintf("(valid_until IS NOT NULL AND valid_until <= $%d)", len(args))
		}
		conditions = append(conditions, condition)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list administrative areas: %w", err)
	}
	defer rows.Close()

	var areas []Area
	for rows.Next() {
		var area Area
		var areaID uuid.UUID
		var parentID uuid.NullUUID
		var name, externalID sql.NullString
		var validUntil sql.NullTime
		if err := rows.Scan(&areaID, &parentID, &name, &validUntil, &externalID); err != nil {
			return nil, fmt.Errorf("scan administrative area: %w", err)
		}
		area.ID = id.AreaID(areaID)
		if parentID.Valid {
			parent := id.AreaID(parentID.UUID)
			area.ParentID = &parent
		}
		area.Name = name.String
		if validUntil.Valid {
			t := validUntil.Time
			area.ValidUntil = &t
		}
		area.ExternalID = externalID.String
		areas = append(areas, area)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list administrative areas: %w", err)
	}
	return areas, nil
}

func nullableAreaID(areaID *id.AreaID) uuid.NullUUID {
	if areaID == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*areaID), Valid: true}
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
