package facto

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/fkt/internal/model"
	"github.com/hitoshi/fkt/internal/repository"
)

// dataFactoLayout は事実の日付の入力形式（YYYY-MM-DD）。
const dataFactoLayout = "2006-01-02"

// Input は事実の作成・更新リクエストの入力値。
type Input struct {
	Descricao   string
	DataFacto   string // 空の場合は日付なし
	GrauCerteza string // 空の場合はmedio
	Observacoes string
	DocumentoID string
}

// MetricsRecorder は検証で拒否された禁止語を記録するインターフェース。
type MetricsRecorder interface {
	RecordValidationRejected(term string)
}

type nopRecorder struct{}

func (nopRecorder) RecordValidationRejected(string) {}

// Service は事実の作成・更新・削除のビジネスロジックを提供する。
type Service struct {
	repo      repository.FactoRepository
	sanitizer TextSanitizer
	metrics   MetricsRecorder
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(repo repository.FactoRepository, sanitizer TextSanitizer, metrics MetricsRecorder) *Service {
	if sanitizer == nil {
		sanitizer = NewPlainTextSanitizer()
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Service{
		repo:      repo,
		sanitizer: sanitizer,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Check は記述を検証し、拒否された場合はメトリクスに記録する。
func (s *Service) Check(descricao string) ValidationResult {
	result := Validate(descricao)
	if !result.OK {
		s.metrics.RecordValidationRejected(result.Term)
	}
	return result
}

// ListByProcesso は案件に属するユーザーの事実一覧を返す。
func (s *Service) ListByProcesso(ctx context.Context, userID, processoID string) ([]*model.Facto, error) {
	factos, err := s.repo.ListByProcesso(ctx, userID, processoID)
	if err != nil {
		return nil, fmt.Errorf("failed to list factos: %w", repository.AsAPIError(err))
	}
	if factos == nil {
		factos = []*model.Facto{}
	}
	return factos, nil
}

// Create は入力を検証して事実を作成する。
// 検証に失敗した場合は書き込みを行わない。
func (s *Service) Create(ctx context.Context, userID, processoID string, in Input) (*model.Facto, error) {
	if strings.TrimSpace(processoID) == "" {
		return nil, model.NewInvalidRequestError()
	}

	f := &model.Facto{
		ID:         uuid.New().String(),
		UserID:     userID,
		ProcessoID: processoID,
	}
	if err := s.apply(f, in); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now

	if err := s.repo.Create(ctx, f); err != nil {
		return nil, fmt.Errorf("failed to create facto: %w", repository.AsAPIError(err))
	}

	slog.Info("facto created",
		slog.String("user_id", userID),
		slog.String("processo_id", processoID),
		slog.String("facto_id", f.ID),
	)
	return f, nil
}

// Update は入力を検証して既存の事実を上書き更新する。
// 他のユーザーの事実は存在しないものとして扱う。
func (s *Service) Update(ctx context.Context, userID, factoID string, in Input) (*model.Facto, error) {
	f, err := s.findOwned(ctx, userID, factoID)
	if err != nil {
		return nil, err
	}

	if err := s.apply(f, in); err != nil {
		return nil, err
	}
	f.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, f); err != nil {
		return nil, fmt.Errorf("failed to update facto: %w", repository.AsAPIError(err))
	}
	return f, nil
}

// Delete は事実を削除する。
func (s *Service) Delete(ctx context.Context, userID, factoID string) error {
	if _, err := s.findOwned(ctx, userID, factoID); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, factoID); err != nil {
		return fmt.Errorf("failed to delete facto: %w", repository.AsAPIError(err))
	}
	return nil
}

func (s *Service) findOwned(ctx context.Context, userID, factoID string) (*model.Facto, error) {
	f, err := s.repo.FindByID(ctx, factoID)
	if err != nil {
		return nil, fmt.Errorf("failed to find facto: %w", err)
	}
	if f == nil || f.UserID != userID {
		return nil, model.NewFactoNotFoundError(factoID)
	}
	return f, nil
}

// apply は入力を検証・正規化してfに反映する。
// 順序: 禁止語検査 → 必須チェック → サニタイズと再検査 → 確信度 → 日付。
func (s *Service) apply(f *model.Facto, in Input) error {
	if err := s.Check(in.Descricao).Err(); err != nil {
		return err
	}
	if strings.TrimSpace(in.Descricao) == "" {
		return model.NewDescricaoRequiredError()
	}

	// タグ除去で語が連結される場合があるため、除去後にも検査する
	descricao := s.sanitizer.Sanitize(in.Descricao)
	if descricao == "" {
		return model.NewDescricaoRequiredError()
	}
	if err := s.Check(descricao).Err(); err != nil {
		return err
	}

	grau := model.GrauCertezaMedio
	if v := strings.TrimSpace(in.GrauCerteza); v != "" {
		grau = model.GrauCerteza(v)
		if !grau.IsValid() {
			return model.NewInvalidGrauCertezaError(v)
		}
	}

	var dataFacto *time.Time
	if v := strings.TrimSpace(in.DataFacto); v != "" {
		t, err := time.Parse(dataFactoLayout, v)
		if err != nil {
			return model.NewInvalidDataFactoError(v)
		}
		dataFacto = &t
	}

	f.Descricao = descricao
	f.GrauCerteza = grau
	f.DataFacto = dataFacto
	f.Observacoes = optionalText(s.sanitizer.Sanitize(in.Observacoes))
	f.DocumentoID = optionalText(strings.TrimSpace(in.DocumentoID))
	return nil
}

func optionalText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
