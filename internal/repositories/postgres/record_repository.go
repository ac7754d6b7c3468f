package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/asakaida/kizuna/internal/entities"
	"github.com/asakaida/kizuna/internal/repositories"
	"github.com/lib/pq"
)

// PostgresRecordRepository implements RecordRepository using PostgreSQL
type PostgresRecordRepository struct {
	db *sql.DB
}

// NewPostgresRecordRepository creates a new PostgreSQL record repository
func NewPostgresRecordRepository(db *sql.DB) repositories.RecordRepository {
	return &PostgresRecordRepository{db: db}
}

// Write creates or replaces the attributes of a record
func (r *PostgresRecordRepository) Write(ctx context.Context, tenantID string, ref entities.RecordRef, attrs entities.Attributes) error {
	if err := ref.Validate(); err != nil {
		return fmt.Errorf("invalid record reference: %w", err)
	}
	data, err := attrs.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal attributes: %w", err)
	}

	query := `
		INSERT INTO records (tenant_id, record_type, record_id, attributes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, record_type, record_id)
		DO UPDATE SET attributes = EXCLUDED.attributes, updated_at = EXCLUDED.updated_at
	`
	now := time.Now()
	if _, err := r.db.ExecContext(ctx, query, tenantID, ref.Type, ref.ID, string(data), now, now); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

// Get returns the attributes of a record
func (r *PostgresRecordRepository) Get(ctx context.Context, tenantID string, ref entities.RecordRef) (entities.Attributes, error) {
	query := `
		SELECT attributes
		FROM records
		WHERE tenant_id = $1 AND record_type = $2 AND record_id = $3
	`
	var data []byte
	err := r.db.QueryRowContext(ctx, query, tenantID, ref.Type, ref.ID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %s: %w", ref, repositories.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return entities.UnmarshalAttributes(data)
}

// GetMany returns the attributes of every existing record among refs.
// One query per record type, each using an id array.
func (r *PostgresRecordRepository) GetMany(ctx context.Context, tenantID string, refs []entities.RecordRef) (map[entities.RecordRef]entities.Attributes, error) {
	byType := make(map[string][]string)
	var types []string
	for _, ref := range refs {
		if _, seen := byType[ref.Type]; !seen {
			types = append(types, ref.Type)
		}
		byType[ref.Type] = append(byType[ref.Type], ref.ID)
	}

	result := make(map[entities.RecordRef]entities.Attributes, len(refs))
	query := `
		SELECT record_id, attributes
		FROM records
		WHERE tenant_id = $1 AND record_type = $2 AND record_id = ANY($3)
	`
	for _, typ := range types {
		if err := r.collect(ctx, query, result, typ, tenantID, typ, pq.Array(byType[typ])); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (r *PostgresRecordRepository) collect(ctx context.Context, query string, into map[entities.RecordRef]entities.Attributes, typ string, args ...interface{}) error {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to read records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return fmt.Errorf("failed to scan record: %w", err)
		}
		attrs, err := entities.UnmarshalAttributes(data)
		if err != nil {
			return fmt.Errorf("failed to unmarshal attributes of %s:%s: %w", typ, id, err)
		}
		into[entities.NewRecordRef(typ, id)] = attrs
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating records: %w", err)
	}
	return nil
}

// Delete removes a record together with every membership row that references it
func (r *PostgresRecordRepository) Delete(ctx context.Context, tenantID string, ref entities.RecordRef) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		DELETE FROM records
		WHERE tenant_id = $1 AND record_type = $2 AND record_id = $3
	`, tenantID, ref.Type, ref.ID)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("record %s: %w", ref, repositories.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM relations
		WHERE tenant_id = $1
			AND ((owner_type = $2 AND owner_id = $3) OR (member_type = $2 AND member_id = $3))
	`, tenantID, ref.Type, ref.ID); err != nil {
		return fmt.Errorf("failed to delete record relations: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
