package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type kindErr struct{ kind FailureKind }

func (e kindErr) Error() string            { return "classified" }
func (e kindErr) FailureKind() FailureKind { return e.kind }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"nil", nil, FailureNone},
		{"plain error", errors.New("dial tcp: refused"), FailureTransport},
		{"classified", kindErr{FailureFeatureAbsent}, FailureFeatureAbsent},
		{"wrapped classified", fmt.Errorf("award: %w", kindErr{FailureServer}), FailureServer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestFailureKind_Transient(t *testing.T) {
	assert.True(t, FailureTransport.Transient())
	assert.True(t, FailureServer.Transient())
	assert.False(t, FailureFeatureAbsent.Transient())
	assert.False(t, FailureRejected.Transient())
	assert.False(t, FailureMalformed.Transient())
}

func TestDomainError_Is(t *testing.T) {
	wrapped := WrapError("progress", "Get", ErrNotFound, "skill progress not found", errors.New("no rows"))

	assert.True(t, IsNotFound(wrapped))
	assert.True(t, IsNotFound(ErrSkillProgressNotFound))
	assert.True(t, IsValidation(ErrInvalidLessonType))
	assert.True(t, IsUnauthorized(ErrMissingCredential))
	assert.False(t, IsValidation(ErrSkillProgressNotFound))
	assert.Contains(t, wrapped.Error(), "progress.Get")
}
