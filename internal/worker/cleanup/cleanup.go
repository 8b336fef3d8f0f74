// Package cleanup は使用不能になったOAuthトークンの定期削除ジョブを提供する。
// リフレッシュトークンを持たずアクセストークンの有効期限が切れた行を削除し、
// 対応する接続状態を未接続に戻す。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// MetricsRecorder はクリーンアップ結果の記録を抽象化する。
type MetricsRecorder interface {
	RecordCleanup(tokens, connections int64)
}

// 接続状態を先に解除する。途中で失敗してもトークン行が残るため次回の実行で再処理される。
const (
	clearConnectionsQuery = `
		UPDATE user_services us
		SET connected = false, connected_at = NULL
		FROM oauth_tokens t
		WHERE us.user_id = t.user_id
			AND us.service = t.provider
			AND us.connected = true
			AND t.refresh_token IS NULL
			AND t.expires_at < $1`

	deleteTokensQuery = `
		DELETE FROM oauth_tokens
		WHERE refresh_token IS NULL
			AND expires_at < $1`
)

// CleanupJob はリフレッシュ不能な期限切れトークンの削除ジョブ。
// 冪等であり、対象がない場合でもエラーにならない。
type CleanupJob struct {
	db      Executor
	logger  *slog.Logger
	metrics MetricsRecorder
	now     func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。metricsはnilでもよい。
func NewCleanupJob(db Executor, logger *slog.Logger, metrics MetricsRecorder) *CleanupJob {
	return &CleanupJob{
		db:      db,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// Run は期限切れトークンを削除し、対応する接続状態を解除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	cutoff := j.now().UTC()

	cleared, err := j.exec(ctx, clearConnectionsQuery, cutoff)
	if err != nil {
		j.logger.Error("接続状態の解除に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("接続状態の解除に失敗: %w", err)
	}

	deleted, err := j.exec(ctx, deleteTokensQuery, cutoff)
	if err != nil {
		j.logger.Error("期限切れトークンの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("期限切れトークンの削除に失敗: %w", err)
	}

	if j.metrics != nil {
		j.metrics.RecordCleanup(deleted, cleared)
	}

	j.logger.Info("トークンクリーンアップジョブが完了しました",
		slog.Int64("deleted_tokens", deleted),
		slog.Int64("cleared_connections", cleared),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}

func (j *CleanupJob) exec(ctx context.Context, query string, cutoff time.Time) (int64, error) {
	result, err := j.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("影響行数の取得に失敗: %w", err)
	}
	return n, nil
}

// RunEvery はintervalごとにRunを実行する。ctxがキャンセルされるまでブロックする。
// 個々の実行エラーはログに記録され、ループは継続する。
func (j *CleanupJob) RunEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
