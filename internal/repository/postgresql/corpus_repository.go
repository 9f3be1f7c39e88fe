package postgresql

import (
	"context"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rulegen-service/internal/entity"
)

type CorpusRepository struct {
	pool *pgxpool.Pool
}

func NewCorpusRepository(pool *pgxpool.Pool) *CorpusRepository {
	return &CorpusRepository{pool: pool}
}

// ReplaceAll swaps the whole corpus snapshot in one transaction: every old
// row is discarded, then the new set is batch-inserted. Readers either see
// the previous snapshot or the new one.
func (r *CorpusRepository) ReplaceAll(ctx context.Context, rules []entity.CorpusRule) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM corpus_rules;`); err != nil {
		return err
	}

	const q = `
INSERT INTO corpus_rules
	(rule_id, level, description, groups, source, file_path, file_name,
	 file_mtime, is_overwritten, rule_xml, parent_rule_ids, scanned_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
`
	batch := &pgx.Batch{}
	for _, rule := range rules {
		batch.Queue(q,
			rule.RuleID,
			rule.Level,
			rule.Description,
			rule.Groups,
			rule.Source,
			rule.FilePath,
			rule.FileName,
			rule.FileMtime,
			rule.IsOverwritten,
			rule.RuleXML,
			joinParentIDs(rule.ParentRuleIDs),
			rule.ScannedAt,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type CorpusFilter struct {
	Source string // "custom", "default" or empty
	Level  *int
	Search string // matches rule_id (exact), description or groups
}

func (r *CorpusRepository) Count(ctx context.Context, f CorpusFilter) (int, error) {
	where, args := buildCorpusWhere(f)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM corpus_rules`+where, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (r *CorpusRepository) List(ctx context.Context, f CorpusFilter, offset, limit int) ([]entity.CorpusRule, error) {
	where, args := buildCorpusWhere(f)
	q := `
SELECT id, rule_id, level, description, groups, source, file_path, file_name,
       file_mtime, is_overwritten, rule_xml, parent_rule_ids, scanned_at
FROM corpus_rules` + where + `
ORDER BY rule_id ASC
OFFSET $` + strconv.Itoa(len(args)+1) + ` LIMIT $` + strconv.Itoa(len(args)+2) + `;`
	args = append(args, offset, limit)

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCorpusRows(rows)
}

func (r *CorpusRepository) GetByRuleID(ctx context.Context, ruleID int) (*entity.CorpusRule, error) {
	const q = `
SELECT id, rule_id, level, description, groups, source, file_path, file_name,
       file_mtime, is_overwritten, rule_xml, parent_rule_ids, scanned_at
FROM corpus_rules
WHERE rule_id = $1
LIMIT 1;
`
	rows, err := r.pool.Query(ctx, q, ruleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules, err := scanCorpusRows(rows)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, ErrNotFound
	}
	return &rules[0], nil
}

type SourceCounts struct {
	Total       int
	Custom      int
	Default     int
	Overwritten int
}

func (r *CorpusRepository) CountBySource(ctx context.Context) (SourceCounts, error) {
	const q = `
SELECT count(*),
       count(*) FILTER (WHERE source = 'custom'),
       count(*) FILTER (WHERE source = 'default'),
       count(*) FILTER (WHERE is_overwritten)
FROM corpus_rules;
`
	var c SourceCounts
	if err := r.pool.QueryRow(ctx, q).Scan(&c.Total, &c.Custom, &c.Default, &c.Overwritten); err != nil {
		return SourceCounts{}, err
	}
	return c, nil
}

type DuplicateID struct {
	RuleID int
	Count  int
}

func (r *CorpusRepository) ListDuplicateRuleIDs(ctx context.Context) ([]DuplicateID, error) {
	const q = `
SELECT rule_id, count(*)
FROM corpus_rules
GROUP BY rule_id
HAVING count(*) > 1
ORDER BY rule_id ASC;
`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dups []DuplicateID
	for rows.Next() {
		var d DuplicateID
		if err := rows.Scan(&d.RuleID, &d.Count); err != nil {
			return nil, err
		}
		dups = append(dups, d)
	}
	return dups, rows.Err()
}

func (r *CorpusRepository) ListOverwritten(ctx context.Context, limit int) ([]entity.CorpusRule, error) {
	const q = `
SELECT id, rule_id, level, description, groups, source, file_path, file_name,
       file_mtime, is_overwritten, rule_xml, parent_rule_ids, scanned_at
FROM corpus_rules
WHERE is_overwritten
ORDER BY rule_id ASC
LIMIT $1;
`
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCorpusRows(rows)
}

func (r *CorpusRepository) ListRuleIDs(ctx context.Context) ([]int, error) {
	return r.listIDs(ctx, `SELECT rule_id FROM corpus_rules;`)
}

// ListCustomRangeRuleIDs returns every identifier in the reserved custom
// range, for free-ID suggestion.
func (r *CorpusRepository) ListCustomRangeRuleIDs(ctx context.Context) ([]int, error) {
	return r.listIDs(ctx,
		`SELECT rule_id FROM corpus_rules WHERE rule_id >= 100000 AND rule_id < 120000;`)
}

func (r *CorpusRepository) listIDs(ctx context.Context, q string) ([]int, error) {
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func buildCorpusWhere(f CorpusFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, strings.Replace(cond, "?", "$"+strconv.Itoa(len(args)), 1))
	}

	if f.Source != "" {
		add("source = ?", f.Source)
	}
	if f.Level != nil {
		add("level = ?", *f.Level)
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		if n, err := strconv.Atoi(f.Search); err == nil {
			args = append(args, n, like)
			ph := len(args)
			conds = append(conds, "(rule_id = $"+strconv.Itoa(ph-1)+
				" OR description ILIKE $"+strconv.Itoa(ph)+
				" OR groups ILIKE $"+strconv.Itoa(ph)+")")
		} else {
			args = append(args, like)
			ph := strconv.Itoa(len(args))
			conds = append(conds, "(description ILIKE $"+ph+" OR groups ILIKE $"+ph+")")
		}
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanCorpusRows(rows pgx.Rows) ([]entity.CorpusRule, error) {
	var rules []entity.CorpusRule
	for rows.Next() {
		var (
			rule    entity.CorpusRule
			parents *string
		)
		if err := rows.Scan(
			&rule.ID,
			&rule.RuleID,
			&rule.Level,
			&rule.Description,
			&rule.Groups,
			&rule.Source,
			&rule.FilePath,
			&rule.FileName,
			&rule.FileMtime,
			&rule.IsOverwritten,
			&rule.RuleXML,
			&parents,
			&rule.ScannedAt,
		); err != nil {
			return nil, err
		}
		rule.ParentRuleIDs = splitParentIDs(parents)
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// Parent IDs travel as a comma-separated text column.
func joinParentIDs(ids []int) *string {
	if len(ids) == 0 {
		return nil
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	s := strings.Join(parts, ",")
	return &s
}

func splitParentIDs(s *string) []int {
	if s == nil || *s == "" {
		return nil
	}
	var ids []int
	for _, part := range strings.Split(*s, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
