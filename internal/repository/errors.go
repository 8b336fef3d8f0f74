package repository

import (
	"errors"
	"log/slog"

	"github.com/hitoshi/fkt/internal/model"
	"github.com/lib/pq"
)

// PostgreSQLのSQLSTATEコード
const (
	pqUniqueViolation       = "23505"
	pqForeignKeyViolation   = "23503"
	pqNotNullViolation      = "23502"
	pqInsufficientPrivilege = "42501"
)

const defaultDatabaseErrorMessage = "Ocorreu um erro ao processar o pedido. Por favor, tente novamente."

// DatabaseErrorMessage はDBエラーをユーザーに表示できる安全なメッセージに変換する。
// 詳細はログにのみ記録する。
func DatabaseErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return defaultDatabaseErrorMessage
	}

	slog.Error("database error",
		slog.String("code", string(pqErr.Code)),
		slog.String("error", pqErr.Message),
	)

	switch string(pqErr.Code) {
	case pqUniqueViolation:
		return "Este registo já existe."
	case pqForeignKeyViolation:
		return "Não é possível eliminar: o item está em uso."
	case pqNotNullViolation:
		return "Campo obrigatório em falta."
	case pqInsufficientPrivilege:
		return "Sem permissão para esta operação."
	default:
		return defaultDatabaseErrorMessage
	}
}

// AsAPIError は制約違反・権限エラーをAPIErrorに変換する。
// それ以外のエラーはそのまま返し、内部エラーとして扱わせる。
func AsAPIError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch string(pqErr.Code) {
	case pqUniqueViolation, pqForeignKeyViolation, pqNotNullViolation, pqInsufficientPrivilege:
		return model.NewDatabaseError(DatabaseErrorMessage(err))
	default:
		return err
	}
}
