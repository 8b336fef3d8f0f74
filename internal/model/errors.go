// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, facto, service, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeConclusiveTerm     = "CONCLUSIVE_TERM"
	ErrCodeDescricaoRequired  = "DESCRICAO_REQUIRED"
	ErrCodeInvalidGrauCerteza = "INVALID_GRAU_CERTEZA"
	ErrCodeInvalidDataFacto   = "INVALID_DATA_FACTO"
	ErrCodeFactoNotFound      = "FACTO_NOT_FOUND"
	ErrCodeInvalidService     = "INVALID_SERVICE"
	ErrCodeDatabase           = "DATABASE_ERROR"
	ErrCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Autenticação necessária.",
		Category: "auth",
		Action:   "Inicie sessão novamente.",
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "Não foi possível interpretar o pedido.",
		Category: "validation",
		Action:   "Envie o pedido em formato JSON válido.",
	}
}

// NewConclusiveTermError は結論的な語を含む事実記述のエラーを生成する。
// メッセージは検証結果のメッセージをそのまま用いる。
func NewConclusiveTermError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeConclusiveTerm,
		Message:  message,
		Category: "validation",
		Action:   "Reformule a descrição de forma neutra, sem qualificações jurídicas.",
	}
}

// NewDescricaoRequiredError は事実記述が空の場合のエラーを生成する。
func NewDescricaoRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeDescricaoRequired,
		Message:  "A descrição é obrigatória.",
		Category: "validation",
		Action:   "Preencha a descrição do facto.",
	}
}

// NewInvalidGrauCertezaError は確信度の値が無効な場合のエラーを生成する。
func NewInvalidGrauCertezaError(value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidGrauCerteza,
		Message:  fmt.Sprintf("Grau de certeza inválido: %s", value),
		Category: "validation",
		Action:   "Use alto, medio, baixo ou desconhecido.",
	}
}

// NewInvalidDataFactoError は事実の日付が解析できない場合のエラーを生成する。
func NewInvalidDataFactoError(value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDataFacto,
		Message:  fmt.Sprintf("Data do facto inválida: %s", value),
		Category: "validation",
		Action:   "Use o formato AAAA-MM-DD.",
	}
}

// NewFactoNotFoundError は事実が見つからない場合のエラーを生成する。
func NewFactoNotFoundError(factoID string) *APIError {
	return &APIError{
		Code:     ErrCodeFactoNotFound,
		Message:  fmt.Sprintf("Facto não encontrado: %s", factoID),
		Category: "facto",
		Action:   "Verifique o identificador do facto.",
	}
}

// NewInvalidServiceError は未知の外部サービス識別子のエラーを生成する。
func NewInvalidServiceError(service string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidService,
		Message:  fmt.Sprintf("Serviço inválido: %s", service),
		Category: "service",
		Action:   "Escolha um dos serviços disponíveis no perfil.",
	}
}

// NewDatabaseError はDBエラーをユーザー向けメッセージに変換したエラーを生成する。
func NewDatabaseError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeDatabase,
		Message:  message,
		Category: "system",
		Action:   "Por favor, tente novamente.",
	}
}

// NewRateLimitError はレート制限超過エラーを生成する。
func NewRateLimitError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "Demasiados pedidos. Tente novamente mais tarde.",
		Category: "system",
		Action:   "Aguarde o tempo indicado e tente novamente.",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Ocorreu um erro interno.",
		Category: "system",
		Action:   "Aguarde alguns instantes e tente novamente.",
	}
}
