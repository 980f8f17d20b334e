package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-deposit/pkg/simpledeposit"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements simpledeposit.Repository using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) simpledeposit.Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) simpledeposit.Repository {
	return &Repository{db: pool}
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("duplicate entry in %s", operation)
		case "23503": // foreign_key_violation
			return fmt.Errorf("referenced record not found in %s", operation)
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

// Package operations

func (r *Repository) CreatePackage(ctx context.Context, pkg *simpledeposit.Package) error {
	query := `
		INSERT INTO deposit.package (id, file_name, type, created_at)
		VALUES ($1, $2, $3, $4)`

	_, err := r.db.Exec(ctx, query, pkg.ID, pkg.FileName, string(pkg.Type), pkg.CreatedAt)
	if err != nil {
		return r.handlePostgresError("create_package", err)
	}

	entryQuery := `
		INSERT INTO deposit.package_entry (package_id, position, business_object_id, file_name, relative_path, size)
		VALUES ($1, $2, $3, $4, $5, $6)`

	for i, entry := range pkg.Entries {
		_, err := r.db.Exec(ctx, entryQuery,
			pkg.ID, i, entry.BusinessObjectID, entry.FileName, entry.RelativePath, entry.Size)
		if err != nil {
			return r.handlePostgresError("create_package_entry", err)
		}
	}

	return nil
}

func (r *Repository) GetPackage(ctx context.Context, id uuid.UUID) (*simpledeposit.Package, error) {
	query := `
		SELECT id, file_name, type, created_at
		FROM deposit.package
		WHERE id = $1`

	var pkg simpledeposit.Package
	var pkgType string
	err := r.db.QueryRow(ctx, query, id).Scan(&pkg.ID, &pkg.FileName, &pkgType, &pkg.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simpledeposit.ErrPackageNotFound
		}
		return nil, r.handlePostgresError("get_package", err)
	}
	pkg.Type = simpledeposit.PackageType(pkgType)

	entryQuery := `
		SELECT business_object_id, file_name, relative_path, size
		FROM deposit.package_entry
		WHERE package_id = $1
		ORDER BY position`

	rows, err := r.db.Query(ctx, entryQuery, id)
	if err != nil {
		return nil, r.handlePostgresError("get_package_entries", err)
	}
	defer rows.Close()

	for rows.Next() {
		var entry simpledeposit.PackageEntry
		if err := rows.Scan(&entry.BusinessObjectID, &entry.FileName, &entry.RelativePath, &entry.Size); err != nil {
			return nil, r.handlePostgresError("scan_package_entry", err)
		}
		pkg.Entries = append(pkg.Entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("get_package_entries", err)
	}

	return &pkg, nil
}

// Deposit record operations

func (r *Repository) CreateDepositRecord(ctx context.Context, rec *simpledeposit.DepositRecord) error {
	query := `
		INSERT INTO deposit.deposit_record (
			deposit_id, business_object_id, parent_deposit_id, package_id,
			object_type, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.Exec(ctx, query,
		rec.DepositID, rec.BusinessObjectID, rec.ParentDepositID, rec.PackageID,
		string(rec.ObjectType), string(rec.Status), rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("create_deposit_record", err)
	}
	return nil
}

func (r *Repository) GetDepositRecord(ctx context.Context, depositID string) (*simpledeposit.DepositRecord, error) {
	query := `
		SELECT deposit_id, business_object_id, parent_deposit_id, package_id,
		       object_type, status, created_at, updated_at
		FROM deposit.deposit_record
		WHERE deposit_id = $1`

	rec, err := r.scanDepositRecord(r.db.QueryRow(ctx, query, depositID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simpledeposit.ErrDepositNotFound
		}
		return nil, r.handlePostgresError("get_deposit_record", err)
	}
	return rec, nil
}

func (r *Repository) ListPendingDeposits(ctx context.Context) ([]*simpledeposit.DepositRecord, error) {
	query := `
		SELECT deposit_id, business_object_id, parent_deposit_id, package_id,
		       object_type, status, created_at, updated_at
		FROM deposit.deposit_record
		WHERE status = $1
		ORDER BY seq`

	rows, err := r.db.Query(ctx, query, string(simpledeposit.DepositStatusPending))
	if err != nil {
		return nil, r.handlePostgresError("list_pending_deposits", err)
	}
	defer rows.Close()

	return r.collectDepositRecords(rows, "list_pending_deposits")
}

func (r *Repository) ListDepositsByObject(ctx context.Context, businessObjectID string, status *simpledeposit.DepositStatus) ([]*simpledeposit.DepositRecord, error) {
	query := `
		SELECT deposit_id, business_object_id, parent_deposit_id, package_id,
		       object_type, status, created_at, updated_at
		FROM deposit.deposit_record
		WHERE business_object_id = $1`
	args := []interface{}{businessObjectID}

	if status != nil {
		query += ` AND status = $2`
		args = append(args, string(*status))
	}
	query += ` ORDER BY seq DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError("list_deposits_by_object", err)
	}
	defer rows.Close()

	return r.collectDepositRecords(rows, "list_deposits_by_object")
}

func (r *Repository) UpdateDepositStatus(ctx context.Context, depositID string, status simpledeposit.DepositStatus) (bool, error) {
	// Conditional on still-pending so concurrent reconcile passes stay
	// idempotent: the second writer matches zero rows.
	query := `
		UPDATE deposit.deposit_record
		SET status = $2, updated_at = now()
		WHERE deposit_id = $1 AND status = $3`

	tag, err := r.db.Exec(ctx, query, depositID, string(status), string(simpledeposit.DepositStatusPending))
	if err != nil {
		return false, r.handlePostgresError("update_deposit_status", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish "already terminal" from "no such record".
		var exists bool
		err := r.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM deposit.deposit_record WHERE deposit_id = $1)`,
			depositID).Scan(&exists)
		if err != nil {
			return false, r.handlePostgresError("update_deposit_status", err)
		}
		if !exists {
			return false, simpledeposit.ErrDepositNotFound
		}
		return false, nil
	}
	return true, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *Repository) scanDepositRecord(row rowScanner) (*simpledeposit.DepositRecord, error) {
	var rec simpledeposit.DepositRecord
	var objectType, status string
	err := row.Scan(&rec.DepositID, &rec.BusinessObjectID, &rec.ParentDepositID, &rec.PackageID,
		&objectType, &status, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.ObjectType = simpledeposit.ObjectType(objectType)
	rec.Status = simpledeposit.DepositStatus(status)
	return &rec, nil
}

func (r *Repository) collectDepositRecords(rows pgx.Rows, operation string) ([]*simpledeposit.DepositRecord, error) {
	var result []*simpledeposit.DepositRecord
	for rows.Next() {
		rec, err := r.scanDepositRecord(rows)
		if err != nil {
			return nil, r.handlePostgresError(operation, err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError(operation, err)
	}
	return result, nil
}

// Relationship operations

func (r *Repository) CreateRelationship(ctx context.Context, edge *simpledeposit.RelationshipEdge) error {
	// (subject, relation, object) is the primary key; re-recording is a no-op.
	query := `
		INSERT INTO deposit.relationship_edge (subject_id, relation, object_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (subject_id, relation, object_id) DO NOTHING`

	_, err := r.db.Exec(ctx, query, edge.SubjectID, string(edge.Relation), edge.ObjectID, edge.CreatedAt)
	if err != nil {
		return r.handlePostgresError("create_relationship", err)
	}
	return nil
}

func (r *Repository) ListRelationships(ctx context.Context, subjectID string, relation *simpledeposit.RelationType) ([]*simpledeposit.RelationshipEdge, error) {
	query := `
		SELECT subject_id, relation, object_id, created_at
		FROM deposit.relationship_edge
		WHERE subject_id = $1`
	args := []interface{}{subjectID}

	if relation != nil {
		query += ` AND relation = $2`
		args = append(args, string(*relation))
	}
	query += ` ORDER BY relation, object_id`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError("list_relationships", err)
	}
	defer rows.Close()

	var result []*simpledeposit.RelationshipEdge
	for rows.Next() {
		var edge simpledeposit.RelationshipEdge
		var rel string
		if err := rows.Scan(&edge.SubjectID, &rel, &edge.ObjectID, &edge.CreatedAt); err != nil {
			return nil, r.handlePostgresError("scan_relationship", err)
		}
		edge.Relation = simpledeposit.RelationType(rel)
		result = append(result, &edge)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list_relationships", err)
	}
	return result, nil
}

func (r *Repository) HasRelationship(ctx context.Context, subjectID string, relation simpledeposit.RelationType, objectID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM deposit.relationship_edge
			WHERE subject_id = $1 AND relation = $2 AND object_id = $3
		)`

	var exists bool
	err := r.db.QueryRow(ctx, query, subjectID, string(relation), objectID).Scan(&exists)
	if err != nil {
		return false, r.handlePostgresError("has_relationship", err)
	}
	return exists, nil
}

// Canonical object cache

func (r *Repository) SaveBusinessObject(ctx context.Context, obj *simpledeposit.BusinessObject) error {
	doc, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("encoding business object: %w", err)
	}

	query := `
		INSERT INTO deposit.business_object (id, doc, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`

	_, err = r.db.Exec(ctx, query, obj.ID, doc)
	if err != nil {
		return r.handlePostgresError("save_business_object", err)
	}
	return nil
}

func (r *Repository) GetBusinessObject(ctx context.Context, id string) (*simpledeposit.BusinessObject, error) {
	query := `SELECT doc FROM deposit.business_object WHERE id = $1`

	var doc []byte
	err := r.db.QueryRow(ctx, query, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simpledeposit.ErrObjectNotFound
		}
		return nil, r.handlePostgresError("get_business_object", err)
	}

	var obj simpledeposit.BusinessObject
	if err := json.Unmarshal(doc, &obj); err != nil {
		return nil, fmt.Errorf("decoding business object: %w", err)
	}
	return &obj, nil
}
