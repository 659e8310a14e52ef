package taskqueue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlanBatchesContiguousRanges(t *testing.T) {
	files := []string{"a", "b", "c", "d", "e"}
	tasks := PlanBatches("job1", files, "coll", "docs", 2)
	require.Len(t, tasks, 3)

	require.Equal(t, "job1_0000", tasks[0].BatchID)
	require.Equal(t, 0, tasks[0].StartIndex)
	require.Equal(t, 2, tasks[0].EndIndex)
	require.Equal(t, []string{"a", "b"}, tasks[0].FileList)

	require.Equal(t, "job1_0002", tasks[2].BatchID)
	require.Equal(t, 4, tasks[2].StartIndex)
	require.Equal(t, 5, tasks[2].EndIndex)
	require.Equal(t, []string{"e"}, tasks[2].FileList)
}

func TestPlanBatchesEmptyInput(t *testing.T) {
	tasks := PlanBatches("job1", nil, "coll", "docs", 10)
	require.Empty(t, tasks)
}

func TestAudienceForDerivesOrigin(t *testing.T) {
	aud, err := AudienceFor("https://batch-worker.example.com/ingest-batch")
	require.NoError(t, err)
	require.Equal(t, "https://batch-worker.example.com", aud)
}

func TestStaticMinterReturnsFixedToken(t *testing.T) {
	m := StaticMinter{Token: "fixed-token"}
	tok, err := m.Mint(context.Background(), "aud")
	require.NoError(t, err)
	require.Equal(t, "fixed-token", tok)
}
