package postgresql

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rulegen-service/internal/entity"
)

type RuleRepository struct {
	pool *pgxpool.Pool
}

func NewRuleRepository(pool *pgxpool.Pool) *RuleRepository {
	return &RuleRepository{pool: pool}
}

// Create inserts the rule for a job. The job_id unique constraint makes a
// second rule for the same job a database error.
func (r *RuleRepository) Create(ctx context.Context, jobID uuid.UUID, ruleXML string) (uuid.UUID, error) {
	const q = `
INSERT INTO rules (job_id, rule_xml)
VALUES ($1, $2)
RETURNING id;
`
	var id uuid.UUID
	if err := r.pool.QueryRow(ctx, q, jobID, ruleXML).Scan(&id); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (r *RuleRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Rule, error) {
	const q = `
SELECT id, job_id, rule_xml, created_at, updated_at FROM rules WHERE id = $1;
`
	return r.scanOne(r.pool.QueryRow(ctx, q, id))
}

func (r *RuleRepository) GetByJobID(ctx context.Context, jobID uuid.UUID) (*entity.Rule, error) {
	const q = `
SELECT id, job_id, rule_xml, created_at, updated_at FROM rules WHERE job_id = $1;
`
	return r.scanOne(r.pool.QueryRow(ctx, q, jobID))
}

func (r *RuleRepository) List(ctx context.Context) ([]entity.Rule, error) {
	const q = `
SELECT id, job_id, rule_xml, created_at, updated_at
FROM rules
ORDER BY created_at DESC;
`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []entity.Rule
	for rows.Next() {
		var rule entity.Rule
		if err := rows.Scan(&rule.ID, &rule.JobID, &rule.RuleXML, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func (r *RuleRepository) UpdateXML(ctx context.Context, id uuid.UUID, ruleXML string, updatedAt time.Time) error {
	const q = `UPDATE rules SET rule_xml=$2, updated_at=$3 WHERE id=$1;`

	tag, err := r.pool.Exec(ctx, q, id, ruleXML, updatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM rules WHERE id=$1;`

	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RuleRepository) DeleteByJobID(ctx context.Context, jobID uuid.UUID) error {
	const q = `DELETE FROM rules WHERE job_id=$1;`

	_, err := r.pool.Exec(ctx, q, jobID)
	return err
}

func (r *RuleRepository) scanOne(row pgx.Row) (*entity.Rule, error) {
	var rule entity.Rule
	if err := row.Scan(&rule.ID, &rule.JobID, &rule.RuleXML, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rule, nil
}
