package oauth

import "sort"

// baseScopes は全サービス共通で要求するスコープ。
var baseScopes = [...]string{"openid", "email"}

// serviceScopes はサービス識別子から必要なGoogle OAuthスコープへの対応表。
// 起動後に変更しないこと。外部にはScopesForでコピーのみを渡す。
var serviceScopes = map[string][]string{
	"gmail": {
		"https://www.googleapis.com/auth/gmail.readonly",
	},
	"google_drive": {
		"https://www.googleapis.com/auth/drive.readonly",
	},
	"google_calendar": {
		"https://www.googleapis.com/auth/calendar.readonly",
	},
}

// ScopesFor はサービスに必要なスコープのコピーを返す。
// 未知のサービスの場合はfalseを返す。
func ScopesFor(service string) ([]string, bool) {
	scopes, ok := serviceScopes[service]
	if !ok {
		return nil, false
	}
	out := make([]string, len(scopes))
	copy(out, scopes)
	return out, true
}

// IsKnownService はサービス識別子が対応表に存在するかを返す。
func IsKnownService(service string) bool {
	_, ok := serviceScopes[service]
	return ok
}

// Services は対応しているサービス識別子をソート済みで返す。
func Services() []string {
	services := make([]string, 0, len(serviceScopes))
	for s := range serviceScopes {
		services = append(services, s)
	}
	sort.Strings(services)
	return services
}

// requestedScopes は認可URLに載せるスコープ（共通スコープ + サービス固有スコープ）を返す。
func requestedScopes(service string) ([]string, bool) {
	scopes, ok := ScopesFor(service)
	if !ok {
		return nil, false
	}
	return append(baseScopes[:len(baseScopes):len(baseScopes)], scopes...), true
}
