package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/asakaida/kizuna/internal/entities"
	"github.com/asakaida/kizuna/internal/repositories"
	"github.com/lib/pq"
)

const upsertRelationQuery = `
	INSERT INTO relations (
		tenant_id, owner_type, owner_id, relation,
		member_type, member_id, position, created_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (tenant_id, owner_type, owner_id, relation, member_type, member_id)
	DO UPDATE SET position = EXCLUDED.position
`

const deleteRelationQuery = `
	DELETE FROM relations
	WHERE tenant_id = $1
		AND owner_type = $2
		AND owner_id = $3
		AND relation = $4
		AND member_type = $5
		AND member_id = $6
`

// PostgresRelationRepository implements RelationRepository using PostgreSQL
type PostgresRelationRepository struct {
	db *sql.DB
}

// NewPostgresRelationRepository creates a new PostgreSQL relation repository
func NewPostgresRelationRepository(db *sql.DB) repositories.RelationRepository {
	return &PostgresRelationRepository{db: db}
}

// Write creates a membership row, or moves an existing one to the tuple's position
func (r *PostgresRelationRepository) Write(ctx context.Context, tenantID string, tuple *entities.RelationTuple) error {
	return r.BatchWrite(ctx, tenantID, []*entities.RelationTuple{tuple})
}

// Delete removes a membership row
func (r *PostgresRelationRepository) Delete(ctx context.Context, tenantID string, tuple *entities.RelationTuple) error {
	return r.BatchDelete(ctx, tenantID, []*entities.RelationTuple{tuple})
}

// Read retrieves membership rows matching the filter
func (r *PostgresRelationRepository) Read(ctx context.Context, tenantID string, filter *repositories.RelationFilter) ([]*entities.RelationTuple, error) {
	query := `
		SELECT owner_type, owner_id, relation, member_type, member_id, position, created_at
		FROM relations
		WHERE tenant_id = $1
	`
	args := []interface{}{tenantID}

	if filter != nil {
		for _, cond := range []struct {
			column string
			value  string
		}{
			{"owner_type", filter.OwnerType},
			{"owner_id", filter.OwnerID},
			{"relation", filter.Relation},
			{"member_type", filter.MemberType},
			{"member_id", filter.MemberID},
		} {
			if cond.value == "" {
				continue
			}
			args = append(args, cond.value)
			query += fmt.Sprintf(" AND %s = $%d", cond.column, len(args))
		}
	}
	query += " ORDER BY owner_type, owner_id, relation, position, member_type, member_id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read relations: %w", err)
	}
	defer rows.Close()

	var tuples []*entities.RelationTuple
	for rows.Next() {
		var tuple entities.RelationTuple
		err := rows.Scan(
			&tuple.OwnerType, &tuple.OwnerID, &tuple.Relation,
			&tuple.MemberType, &tuple.MemberID, &tuple.Position, &tuple.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan relation: %w", err)
		}
		tuples = append(tuples, &tuple)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating relations: %w", err)
	}

	return tuples, nil
}

// Members returns the ordered members of one owner relation
func (r *PostgresRelationRepository) Members(ctx context.Context, tenantID string, owner entities.RecordRef, relation string) ([]entities.RecordRef, error) {
	tuples, err := r.Read(ctx, tenantID, &repositories.RelationFilter{
		OwnerType: owner.Type,
		OwnerID:   owner.ID,
		Relation:  relation,
	})
	if err != nil {
		return nil, err
	}

	members := make([]entities.RecordRef, 0, len(tuples))
	for _, tuple := range tuples {
		members = append(members, tuple.Member())
	}
	return members, nil
}

// ReplaceMembers atomically replaces the members of one owner relation.
// Rows for members that stay are updated in place so the NOTIFY trigger fires once per row.
func (r *PostgresRelationRepository) ReplaceMembers(ctx context.Context, tenantID string, owner entities.RecordRef, relation string, members []entities.RecordRef) error {
	if err := owner.Validate(); err != nil {
		return fmt.Errorf("invalid owner: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	types := make([]string, len(members))
	ids := make([]string, len(members))
	for i, m := range members {
		types[i], ids[i] = m.Type, m.ID
	}

	// Drop rows whose (type, id) pair is not in the new member list.
	_, err = tx.ExecContext(ctx, `
		DELETE FROM relations
		WHERE tenant_id = $1 AND owner_type = $2 AND owner_id = $3 AND relation = $4
			AND (member_type, member_id) NOT IN (
				SELECT t, i FROM unnest($5::text[], $6::text[]) AS m(t, i)
			)
	`, tenantID, owner.Type, owner.ID, relation, pq.Array(types), pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to delete stale relations: %w", err)
	}

	tuples := make([]*entities.RelationTuple, len(members))
	for i, m := range members {
		tuples[i] = entities.NewRelationTuple(owner, relation, m, i)
	}
	if err := writeTuples(ctx, tx, tenantID, tuples); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// BatchWrite creates multiple rows in a single transaction
func (r *PostgresRelationRepository) BatchWrite(ctx context.Context, tenantID string, tuples []*entities.RelationTuple) error {
	if len(tuples) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := writeTuples(ctx, tx, tenantID, tuples); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// BatchDelete removes multiple rows in a single transaction
func (r *PostgresRelationRepository) BatchDelete(ctx context.Context, tenantID string, tuples []*entities.RelationTuple) error {
	if len(tuples) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, deleteRelationQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, tuple := range tuples {
		if err := tuple.Validate(); err != nil {
			return fmt.Errorf("invalid relation tuple: %w", err)
		}
		_, err := stmt.ExecContext(ctx,
			tenantID, tuple.OwnerType, tuple.OwnerID, tuple.Relation,
			tuple.MemberType, tuple.MemberID,
		)
		if err != nil {
			return fmt.Errorf("failed to delete relation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func writeTuples(ctx context.Context, tx *sql.Tx, tenantID string, tuples []*entities.RelationTuple) error {
	stmt, err := tx.PrepareContext(ctx, upsertRelationQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, tuple := range tuples {
		if err := tuple.Validate(); err != nil {
			return fmt.Errorf("invalid relation tuple: %w", err)
		}
		_, err := stmt.ExecContext(ctx,
			tenantID, tuple.OwnerType, tuple.OwnerID, tuple.Relation,
			tuple.MemberType, tuple.MemberID, tuple.Position, now,
		)
		if err != nil {
			return fmt.Errorf("failed to write relation %s: %w", tuple, err)
		}
	}
	return nil
}
