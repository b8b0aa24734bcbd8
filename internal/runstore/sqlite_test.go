// Copyright 2025 The Refinery Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package runstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	refineryerrors "github.com/prooflab/refinery/pkg/errors"
	"github.com/prooflab/refinery/pkg/pipeline"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleReport(runID string, startedAt time.Time) *pipeline.Report {
	return &pipeline.Report{
		RunID:            runID,
		ProblemStatement: "prove the bound",
		FinalSolution:    "a rigorous proof",
		Outcome:          pipeline.OutcomeSolved,
		IterationCount:   2,
		Critique: &pipeline.Critique{
			Verdict: pipeline.VerdictNoIssues,
			Summary: "Every step is justified.",
		},
		History: []pipeline.HistoryEntry{
			{Stage: pipeline.StageGenerate, Output: "draft", At: startedAt},
			{Stage: pipeline.StageVerify, Output: "ok", At: startedAt.Add(time.Minute)},
		},
		Usage:     pipeline.TokenUsage{InputTokens: 100, OutputTokens: 200, TotalTokens: 300},
		StartedAt: startedAt,
		Duration:  90 * time.Second,
	}
}

func TestStore_RoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	startedAt := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	report := sampleReport("run-1", startedAt)
	require.NoError(t, store.Save(ctx, report))

	loaded, err := store.Get(ctx, "run-1")
	require.NoError(t, err)

	assert.Equal(t, report.RunID, loaded.RunID)
	assert.Equal(t, report.ProblemStatement, loaded.ProblemStatement)
	assert.Equal(t, report.FinalSolution, loaded.FinalSolution)
	assert.Equal(t, report.Outcome, loaded.Outcome)
	assert.Equal(t, report.IterationCount, loaded.IterationCount)
	require.NotNil(t, loaded.Critique)
	assert.Equal(t, pipeline.VerdictNoIssues, loaded.Critique.Verdict)
	require.Len(t, loaded.History, 2)
	assert.Equal(t, pipeline.StageGenerate, loaded.History[0].Stage)
	assert.Equal(t, 300, loaded.Usage.TotalTokens)
}

func TestStore_GetUnknownRun(t *testing.T) {
	store := testStore(t)

	_, err := store.Get(context.Background(), "nope")
	require.Error(t, err)
	var notFound *refineryerrors.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "nope", notFound.ID)
}

func TestStore_ListNewestFirst(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(ctx, sampleReport("old", base)))
	require.NoError(t, store.Save(ctx, sampleReport("mid", base.Add(time.Hour))))
	require.NoError(t, store.Save(ctx, sampleReport("new", base.Add(2*time.Hour))))

	summaries, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	assert.Equal(t, "new", summaries[0].RunID)
	assert.Equal(t, "mid", summaries[1].RunID)
	assert.Equal(t, "old", summaries[2].RunID)
}

func TestStore_ListRespectsLimit(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, store.Save(ctx, sampleReport(id, base.Add(time.Duration(i)*time.Minute))))
	}

	summaries, err := store.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "d", summaries[0].RunID)
	assert.Equal(t, "c", summaries[1].RunID)
}

func TestStore_ListEmpty(t *testing.T) {
	store := testStore(t)

	summaries, err := store.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestStore_DuplicateRunIDRejected(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	report := sampleReport("run-1", time.Now())
	require.NoError(t, store.Save(ctx, report))
	assert.Error(t, store.Save(ctx, report))
}
