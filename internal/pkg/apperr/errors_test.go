package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError(t *testing.T) {
	err := Validation("repo_url", "must be a GitHub repository URL")

	var vErr *ValidationError
	assert.True(t, errors.As(fmt.Errorf("wrap: %w", err), &vErr))
	assert.Equal(t, "repo_url", vErr.Field)
	assert.Equal(t, "repo_url: must be a GitHub repository URL", err.Error())
	assert.Equal(t, "bad", (&ValidationError{Message: "bad"}).Error())
}

func TestDuplicateEntryError_IsSentinel(t *testing.T) {
	cause := errors.New("UNIQUE constraint failed: case_studies.slug")
	err := &DuplicateEntryError{Field: "slug", Value: "widget-1234", Err: cause}

	assert.ErrorIs(t, err, ErrDuplicateEntry)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "widget-1234")
}

func TestDuplicateRepoError(t *testing.T) {
	err := fmt.Errorf("create: %w", &DuplicateRepoError{RepoURL: "https://github.com/acme/widget", CaseStudyID: 3, Slug: "widget-0001"})

	var dup *DuplicateRepoError
	assert.True(t, errors.As(err, &dup))
	assert.Equal(t, "widget-0001", dup.Slug)
	assert.Equal(t, int64(3), dup.CaseStudyID)
}

func TestGenerationErrors_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	svc := &GenerationServiceError{Mode: "case_study", Err: cause}
	assert.ErrorIs(t, svc, cause)
	assert.Contains(t, svc.Error(), "case_study")

	parse := &GenerationParseError{Mode: "vc_report", Reason: "missing key verdict"}
	assert.Contains(t, parse.Error(), "missing key verdict")
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"lock held", ErrAnalysisInProgress, true},
		{"slug collision", &DuplicateEntryError{Field: "slug"}, true},
		{"model down", &GenerationServiceError{Err: errors.New("503")}, true},
		{"bad json", fmt.Errorf("x: %w", &GenerationParseError{Reason: "syntax"}), true},
		{"bad signature", ErrInvalidSignature, false},
		{"validation", Validation("f", "m"), false},
		{"duplicate repo", &DuplicateRepoError{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}
