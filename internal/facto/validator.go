// Package facto は事実（Facto）記述の中立性検証と、事実の作成・更新を提供する。
//
// 事実記述は中立的・客観的でなければならず、法的評価を含む結論的な語
// （"erro", "culpa", "ilegal" 等）を含む記述は保存前に拒否される。
package facto

import (
	"fmt"
	"strings"

	"github.com/hitoshi/fkt/internal/model"
)

// deniedTerms は事実記述に使用できない結論的な語の一覧。
// 検査は宣言順に行われ、最初に一致した語が結果として返る。
var deniedTerms = [...]string{
	"erro", "culpa", "culpado", "culpada", "conforme", "inconformidade",
	"ilegal", "ilícito", "ilícita", "responsável", "responsabilidade",
	"violação", "violou", "incumpriu", "incumprimento", "negligência",
	"negligente", "dolo", "doloso", "fraudulento", "fraude", "abuso",
	"ilegítimo", "ilegítima", "inválido", "inválida", "nulo", "nula",
	"prejudicial", "dano", "lesou", "prejudicou", "infringiu", "infração",
}

// DeniedTerms は禁止語一覧のコピーを宣言順で返す。
func DeniedTerms() []string {
	terms := make([]string, len(deniedTerms))
	copy(terms, deniedTerms[:])
	return terms
}

// ValidationResult は事実記述の検証結果を表す。
type ValidationResult struct {
	OK      bool
	Term    string // 最初に一致した禁止語。OKの場合は空。
	Message string // ユーザー向けの説明。OKの場合は空。
}

// Err は検証失敗をAPIErrorに変換する。成功時はnilを返す。
func (r ValidationResult) Err() error {
	if r.OK {
		return nil
	}
	return model.NewConclusiveTermError(r.Message)
}

// Validate は事実記述に禁止語が含まれていないかを検証する。
// 小文字化した記述に対して部分文字列一致で検査するため、
// "ilegalidade" は "ilegal" に一致する。空文字列は常に成功する。
// 必須チェックは呼び出し側の責務。
func Validate(descricao string) ValidationResult {
	lower := strings.ToLower(descricao)
	for _, term := range deniedTerms {
		if strings.Contains(lower, term) {
			return ValidationResult{
				Term:    term,
				Message: conclusiveTermMessage(term),
			}
		}
	}
	return ValidationResult{OK: true}
}

func conclusiveTermMessage(term string) string {
	return fmt.Sprintf("A descrição do facto contém o termo conclusivo \"%s\". Os factos devem ser neutros e objectivos.", term)
}
