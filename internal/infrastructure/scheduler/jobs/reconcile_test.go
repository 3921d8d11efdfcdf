package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillsim/progress-hub/internal/application/reconcile"
	"github.com/skillsim/progress-hub/internal/domain/progress"
)

type fakeReconciler struct {
	report  reconcile.Report
	err     error
	catalog []string
}

func (f *fakeReconciler) Run(_ context.Context, catalog []string, _ *progress.Summary) (reconcile.Report, error) {
	f.catalog = catalog
	return f.report, f.err
}

func TestReconcileJob(t *testing.T) {
	rec := &fakeReconciler{report: reconcile.Report{Awarded: 2, Failed: []string{"ppe"}}}
	var seen []reconcile.Report
	job := NewReconcileJob(rec, []string{"ppe", "hand-hygiene"}, nil, func(r reconcile.Report) {
		seen = append(seen, r)
	})

	_, ok := job.LastReport()
	assert.False(t, ok)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, []string{"ppe", "hand-hygiene"}, rec.catalog)
	require.Len(t, seen, 1)

	last, ok := job.LastReport()
	require.True(t, ok)
	assert.Equal(t, 2, last.Awarded)
}

func TestReconcileJob_CountFailure(t *testing.T) {
	boom := errors.New("count unavailable")
	job := NewReconcileJob(&fakeReconciler{err: boom}, nil, nil, nil)

	err := job.Run(context.Background())
	require.ErrorIs(t, err, boom)
	_, ok := job.LastReport()
	assert.True(t, ok)
}
