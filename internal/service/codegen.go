package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Harshitk-cp/speclens/internal/domain"
	"github.com/Harshitk-cp/speclens/internal/llm"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultCodegenFormat    = "markdown"
	DefaultCodegenMaxTokens = 4096
)

type GeneratedCode struct {
	ProjectID uuid.UUID `json:"project_id"`
	Format    string    `json:"format"`
	Content   string    `json:"content"`
}

// CodegenService turns a mature specification into an implementation plan.
// Gate checks happen in the dispatch table, not here.
type CodegenService struct {
	export    *ExportService
	client    domain.CompletionClient
	maxTokens int
	logger    *zap.Logger
}

func NewCodegenService(export *ExportService, client domain.CompletionClient, maxTokens int, logger *zap.Logger) *CodegenService {
	if maxTokens <= 0 {
		maxTokens = DefaultCodegenMaxTokens
	}
	return &CodegenService{export: export, client: client, maxTokens: maxTokens, logger: logger}
}

func (s *CodegenService) Generate(ctx context.Context, projectID uuid.UUID, format string) (*GeneratedCode, error) {
	if format == "" {
		format = DefaultCodegenFormat
	}
	doc, err := s.export.Export(ctx, projectID, format)
	if err != nil {
		return nil, err
	}
	out, err := s.client.Complete(ctx, llm.CodegenPrompt(doc.Content), s.maxTokens)
	if err != nil {
		if errors.Is(err, domain.ErrLLMTimeout) || ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("generate code: %w", err)
	}
	s.logger.Info("code generated", zap.String("project_id", projectID.String()), zap.Int("bytes", len(out)))
	return &GeneratedCode{ProjectID: projectID, Format: doc.Format, Content: strings.TrimSpace(out)}, nil
}
