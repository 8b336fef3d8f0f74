package oauth

import (
	"net/url"
	"strings"
)

// ProfilePath はコールバック完了後にブラウザを戻すアプリケーションのプロフィール画面。
const ProfilePath = "/gestao/perfil"

// コールバック失敗時にリダイレクトのmessageパラメータへ載せる理由コード。
// プロバイダーが返したerrorはそのまま載せる。
const (
	ReasonMissingParams       = "missing_params"
	ReasonInvalidState        = "invalid_state"
	ReasonTokenExchangeFailed = "token_exchange_failed"
	ReasonStorageFailed       = "storage_failed"
	ReasonInternalError       = "internal_error"
)

// Outcome はコールバック処理の終端状態。
// Reasonが空なら成功、そうでなければ失敗を表す。
type Outcome struct {
	Service string
	Reason  string
}

func successOutcome(service string) Outcome {
	return Outcome{Service: service}
}

func errorOutcome(reason string) *Outcome {
	return &Outcome{Reason: reason}
}

// Success はコールバックが成功したかどうかを返す。
func (o Outcome) Success() bool {
	return o.Reason == ""
}

// Query はプロフィール画面に渡すクエリ文字列を返す。
// oauth=success&service=<name> または oauth=error&message=<reason>。
func (o Outcome) Query() string {
	if o.Success() {
		return "oauth=success&service=" + url.QueryEscape(o.Service)
	}
	return "oauth=error&message=" + url.QueryEscape(o.Reason)
}

// RedirectURL はアプリケーションのプロフィール画面へのリダイレクトURLを返す。
func (o Outcome) RedirectURL(appURL string) string {
	return strings.TrimRight(appURL, "/") + ProfilePath + "?" + o.Query()
}

// metricLabel はメトリクス用のラベルを返す。
// プロバイダー由来の任意文字列でラベルが増えないよう "provider_error" にまとめる。
func (o Outcome) metricLabel() string {
	switch o.Reason {
	case "":
		return "success"
	case ReasonMissingParams, ReasonInvalidState, ReasonTokenExchangeFailed, ReasonStorageFailed, ReasonInternalError:
		return o.Reason
	default:
		return "provider_error"
	}
}
