// Package genai 生成适配层：填充 prompt、调用模型、严格解析返回的 JSON。
package genai

import (
	"context"
	"fmt"
	"time"

	"github.com/qs3c/devhance_server/internal/pkg/apperr"
	"github.com/qs3c/devhance_server/internal/pkg/logger"
)

// Archiver 保存无法解析的原始回复，便于排查
type Archiver interface {
	Archive(ctx context.Context, key string, data []byte) error
}

type Adapter struct {
	gen      Generator
	archiver Archiver
	log      logger.Logger
	now      func() time.Time
}

// NewAdapter archiver 可为 nil
func NewAdapter(gen Generator, archiver Archiver, log logger.Logger) *Adapter {
	if log == nil {
		log = logger.Nop()
	}
	return &Adapter{gen: gen, archiver: archiver, log: log, now: time.Now}
}

type CaseStudyInput struct {
	Context  string
	Metadata interface{}
}

type VCReportInput struct {
	CaseStudy interface{}
	Context   string
	Metrics   interface{}
}

func (a *Adapter) GenerateCaseStudy(ctx context.Context, in CaseStudyInput) (*CaseStudyContent, error) {
	raw, err := a.call(ctx, ModeCaseStudy, CaseStudyPrompt(in.Context, in.Metadata))
	if err != nil {
		return nil, err
	}

	out, err := ParseCaseStudy(raw)
	if err != nil {
		return nil, a.rejected(ctx, ModeCaseStudy, raw, err)
	}
	return out, nil
}

func (a *Adapter) GenerateVCReport(ctx context.Context, in VCReportInput) (*VCReportContent, error) {
	raw, err := a.call(ctx, ModeVCReport, VCReportPrompt(in.CaseStudy, in.Context, in.Metrics))
	if err != nil {
		return nil, err
	}

	out, err := ParseVCReport(raw)
	if err != nil {
		return nil, a.rejected(ctx, ModeVCReport, raw, err)
	}
	return out, nil
}

func (a *Adapter) call(ctx context.Context, mode, prompt string) (string, error) {
	raw, err := a.gen.Generate(ctx, prompt)
	if err != nil {
		a.log.Error(ctx, "generation call failed", "mode", mode, "error", err)
		return "", &apperr.GenerationServiceError{Mode: mode, Err: err}
	}
	return raw, nil
}

func (a *Adapter) rejected(ctx context.Context, mode, raw string, cause error) error {
	a.log.Error(ctx, "generation reply rejected", "mode", mode, "error", cause, "reply_len", len(raw))

	if a.archiver != nil {
		key := fmt.Sprintf("generation/%s/%s.txt", mode, a.now().UTC().Format("20060102T150405.000Z"))
		if err := a.archiver.Archive(ctx, key, []byte(raw)); err != nil {
			a.log.Warn(ctx, "archive rejected reply failed", "key", key, "error", err)
		}
	}

	return &apperr.GenerationParseError{Mode: mode, Reason: cause.Error(), Err: cause}
}
