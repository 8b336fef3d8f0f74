package model

import "time"

// GrauCerteza は事実の確信度を表す。
type GrauCerteza string

const (
	GrauCertezaAlto         GrauCerteza = "alto"
	GrauCertezaMedio        GrauCerteza = "medio"
	GrauCertezaBaixo        GrauCerteza = "baixo"
	GrauCertezaDesconhecido GrauCerteza = "desconhecido"
)

// IsValid は確信度が定義済みの値かどうかを返す。
func (g GrauCerteza) IsValid() bool {
	switch g {
	case GrauCertezaAlto, GrauCertezaMedio, GrauCertezaBaixo, GrauCertezaDesconhecido:
		return true
	default:
		return false
	}
}

// Facto は案件（Processo）に紐づく中立的な事実記述を表す。
type Facto struct {
	ID          string
	UserID      string
	ProcessoID  string
	Descricao   string
	DataFacto   *time.Time
	GrauCerteza GrauCerteza
	Observacoes *string
	DocumentoID *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
