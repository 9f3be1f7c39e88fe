package postgresql

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rulegen-service/internal/entity"
)

type LogFileRepository struct {
	pool *pgxpool.Pool
}

func NewLogFileRepository(pool *pgxpool.Pool) *LogFileRepository {
	return &LogFileRepository{pool: pool}
}

func (r *LogFileRepository) Create(ctx context.Context, f *entity.LogFile) (uuid.UUID, error) {
	const q = `
INSERT INTO log_files (filename, original_filename, file_path, file_size)
VALUES ($1, $2, $3, $4)
RETURNING id;
`
	var id uuid.UUID
	if err := r.pool.QueryRow(ctx, q, f.Filename, f.OriginalFilename, f.FilePath, f.FileSize).Scan(&id); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (r *LogFileRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.LogFile, error) {
	const q = `
SELECT id, filename, original_filename, file_path, file_size, uploaded_at
FROM log_files
WHERE id = $1;
`
	var f entity.LogFile
	if err := r.pool.QueryRow(ctx, q, id).Scan(
		&f.ID, &f.Filename, &f.OriginalFilename, &f.FilePath, &f.FileSize, &f.UploadedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

func (r *LogFileRepository) List(ctx context.Context) ([]entity.LogFile, error) {
	const q = `
SELECT id, filename, original_filename, file_path, file_size, uploaded_at
FROM log_files
ORDER BY uploaded_at DESC;
`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []entity.LogFile
	for rows.Next() {
		var f entity.LogFile
		if err := rows.Scan(&f.ID, &f.Filename, &f.OriginalFilename, &f.FilePath, &f.FileSize, &f.UploadedAt); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (r *LogFileRepository) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM log_files WHERE id=$1;`

	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
