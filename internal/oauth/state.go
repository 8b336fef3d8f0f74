package oauth

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidState はstateパラメータが復号できない、または必須項目を欠く場合のエラー。
var ErrInvalidState = errors.New("invalid oauth state")

// State は認可URLに埋め込み、コールバックで復元するユーザーとサービスの組。
// 署名は付与しない（DESIGN.md参照）。
type State struct {
	UserID  string `json:"userId"`
	Service string `json:"service"`
}

// EncodeState はstateをJSONにしてbase64url（パディングなし）でエンコードする。
func EncodeState(s State) (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to marshal oauth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodeState はstateパラメータを復号する。
// 標準/URL両方のアルファベットとパディング有無を受け付ける。
// userIdとserviceのいずれかが空の場合はErrInvalidStateを返す。
func DecodeState(raw string) (State, error) {
	b, err := decodeBase64(raw)
	if err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	var s State
	if err := json.Unmarshal(b, &s); err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if s.UserID == "" || s.Service == "" {
		return State{}, fmt.Errorf("%w: missing userId or service", ErrInvalidState)
	}

	return s, nil
}

func decodeBase64(raw string) ([]byte, error) {
	raw = strings.TrimRight(raw, "=")
	if raw == "" {
		return nil, errors.New("empty state")
	}
	// 標準アルファベット（+ /）で来た場合もURLアルファベットに寄せる。
	// クエリ文字列の復号で "+" が空白になっている場合も同様に扱う。
	raw = strings.NewReplacer("+", "-", " ", "-", "/", "_").Replace(raw)
	return base64.RawURLEncoding.DecodeString(raw)
}
