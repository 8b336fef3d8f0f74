package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/fkt/internal/model"
)

// PostgresFactoRepo はPostgreSQLを使用した事実リポジトリ。
type PostgresFactoRepo struct {
	db *sql.DB
}

// NewPostgresFactoRepo はPostgresFactoRepoを生成する。
func NewPostgresFactoRepo(db *sql.DB) *PostgresFactoRepo {
	return &PostgresFactoRepo{db: db}
}

const factoColumns = `id, user_id, processo_id, descricao, data_facto, grau_certeza,
	observacoes, documento_id, created_at, updated_at`

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanFacto(s rowScanner) (*model.Facto, error) {
	f := &model.Facto{}
	var dataFacto sql.NullTime
	var observacoes, documentoID sql.NullString
	var grau string

	if err := s.Scan(
		&f.ID, &f.UserID, &f.ProcessoID, &f.Descricao, &dataFacto, &grau,
		&observacoes, &documentoID, &f.CreatedAt, &f.UpdatedAt,
	); err != nil {
		return nil, err
	}

	f.GrauCerteza = model.GrauCerteza(grau)
	f.DataFacto = nullTimePtr(dataFacto)
	f.Observacoes = nullStringPtr(observacoes)
	f.DocumentoID = nullStringPtr(documentoID)
	return f, nil
}

// FindByID は指定IDの事実を取得する。見つからない場合はnilを返す。
func (r *PostgresFactoRepo) FindByID(ctx context.Context, id string) (*model.Facto, error) {
	f, err := scanFacto(r.db.QueryRowContext(ctx,
		`SELECT `+factoColumns+` FROM factos WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find facto: %w", err)
	}
	return f, nil
}

// ListByProcesso はユーザーの案件に属する事実をdata_facto昇順（NULLは末尾）で返す。
func (r *PostgresFactoRepo) ListByProcesso(ctx context.Context, userID, processoID string) ([]*model.Facto, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+factoColumns+`
		 FROM factos
		 WHERE user_id = $1 AND processo_id = $2
		 ORDER BY data_facto ASC NULLS LAST, created_at ASC`,
		userID, processoID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list factos: %w", err)
	}
	defer rows.Close()

	var factos []*model.Facto
	for rows.Next() {
		f, err := scanFacto(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan facto: %w", err)
		}
		factos = append(factos, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate factos: %w", err)
	}

	return factos, nil
}

// Create は事実を作成する。
func (r *PostgresFactoRepo) Create(ctx context.Context, f *model.Facto) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO factos (`+factoColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		f.ID, f.UserID, f.ProcessoID, f.Descricao, f.DataFacto, string(f.GrauCerteza),
		f.Observacoes, f.DocumentoID, f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create facto: %w", err)
	}
	return nil
}

// Update は事実の記述項目を上書き更新する。
func (r *PostgresFactoRepo) Update(ctx context.Context, f *model.Facto) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE factos
		 SET descricao = $2, data_facto = $3, grau_certeza = $4,
		     observacoes = $5, documento_id = $6, updated_at = $7
		 WHERE id = $1`,
		f.ID, f.Descricao, f.DataFacto, string(f.GrauCerteza),
		f.Observacoes, f.DocumentoID, f.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update facto: %w", err)
	}
	return nil
}

// Delete は指定IDの事実を削除する。
func (r *PostgresFactoRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM factos WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete facto: %w", err)
	}
	return nil
}

// compile-time interface check
var _ FactoRepository = (*PostgresFactoRepo)(nil)
