package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/hitoshi/fkt/internal/model"
)

// PostgresUserServiceRepo はPostgreSQLを使用した外部サービス接続状態リポジトリ。
// user_servicesテーブルを扱う。
type PostgresUserServiceRepo struct {
	db *sql.DB
}

// NewPostgresUserServiceRepo はPostgresUserServiceRepoを生成する。
func NewPostgresUserServiceRepo(db *sql.DB) *PostgresUserServiceRepo {
	return &PostgresUserServiceRepo{db: db}
}

// Upsert は接続状態を冪等にUPSERTする。
// UNIQUE(user_id, service)制約を利用したINSERT ON CONFLICTで実装する。
func (r *PostgresUserServiceRepo) Upsert(ctx context.Context, conn *model.ServiceConnection) error {
	if conn.ID == "" {
		conn.ID = uuid.New().String()
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO user_services (id, user_id, service, connected, connected_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, service) DO UPDATE SET
		     connected = EXCLUDED.connected,
		     connected_at = EXCLUDED.connected_at
		 RETURNING id`,
		conn.ID, conn.UserID, conn.Service, conn.Connected, conn.ConnectedAt,
	).Scan(&conn.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert user service: %w", err)
	}
	return nil
}

// Disconnect は接続状態をconnected=false、connected_at=NULLに更新する。
// レコードが存在しない場合は何もしない。
func (r *PostgresUserServiceRepo) Disconnect(ctx context.Context, userID, service string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE user_services SET connected = false, connected_at = NULL
		 WHERE user_id = $1 AND service = $2`,
		userID, service,
	)
	if err != nil {
		return fmt.Errorf("failed to disconnect user service: %w", err)
	}
	return nil
}

// ListByUserID はユーザーの接続状態一覧をサービス名順で返す。
func (r *PostgresUserServiceRepo) ListByUserID(ctx context.Context, userID string) ([]*model.ServiceConnection, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, service, connected, connected_at
		 FROM user_services
		 WHERE user_id = $1
		 ORDER BY service`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list user services: %w", err)
	}
	defer rows.Close()

	var conns []*model.ServiceConnection
	for rows.Next() {
		conn := &model.ServiceConnection{}
		var connectedAt sql.NullTime
		if err := rows.Scan(&conn.ID, &conn.UserID, &conn.Service, &conn.Connected, &connectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user service: %w", err)
		}
		conn.ConnectedAt = nullTimePtr(connectedAt)
		conns = append(conns, conn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user services: %w", err)
	}

	return conns, nil
}

// compile-time interface check
var _ ServiceConnectionRepository = (*PostgresUserServiceRepo)(nil)
