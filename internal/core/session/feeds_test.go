package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatforge/realtime-console/internal/core/domain"
)

func TestProcessingFeed_KeepsLatestPerSource(t *testing.T) {
	mgr, _ := newTestManager(t)
	feed := NewProcessingFeed(mgr, testLogger())
	defer feed.Close()

	dispatch(mgr, envelopeOf(t, domain.EventProcessingUpdate, domain.ProcessingUpdatePayload{
		SourceID: "doc-1", Stage: "chunking", Progress: 0.4,
	}))
	dispatch(mgr, envelopeOf(t, domain.EventProcessingUpdate, domain.ProcessingUpdatePayload{
		SourceID: "doc-1", Stage: "embedding", Progress: 0.8,
	}))
	dispatch(mgr, envelopeOf(t, domain.EventProcessingUpdate, domain.ProcessingUpdatePayload{
		SourceID: "doc-2", Stage: "chunking", Progress: 0.1,
	}))

	updates := feed.Updates()
	require.Len(t, updates, 2)
	assert.Equal(t, "embedding", updates["doc-1"].Stage)
	assert.Equal(t, 0.8, updates["doc-1"].Progress)

	update, ok := feed.Get("doc-2")
	require.True(t, ok)
	assert.Equal(t, "chunking", update.Stage)
}

func TestProcessingFeed_IgnoresMissingSourceID(t *testing.T) {
	mgr, _ := newTestManager(t)
	feed := NewProcessingFeed(mgr, testLogger())
	defer feed.Close()

	dispatch(mgr, envelopeOf(t, domain.EventProcessingUpdate, domain.ProcessingUpdatePayload{
		Stage: "chunking",
	}))

	assert.Empty(t, feed.Updates())
}

func TestDeploymentFeed_ScopedToDeployment(t *testing.T) {
	mgr, _ := newTestManager(t)
	feed := NewDeploymentFeed(mgr, "dep-1", testLogger())
	defer feed.Close()

	dispatch(mgr, envelopeOf(t, domain.EventDeploymentStatus, domain.DeploymentStatusPayload{
		DeploymentID: "dep-1", Status: "active",
	}))
	dispatch(mgr, envelopeOf(t, domain.EventDeploymentStatus, domain.DeploymentStatusPayload{
		DeploymentID: "dep-2", Status: "paused",
	}))

	statuses := feed.Statuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, "active", statuses["dep-1"].Status)
}

func TestDeploymentFeed_FallsBackToEnvelopeScope(t *testing.T) {
	mgr, _ := newTestManager(t)
	feed := NewDeploymentFeed(mgr, "", testLogger())
	defer feed.Close()

	env := envelopeOf(t, domain.EventDeploymentStatus, domain.DeploymentStatusPayload{Status: "deploying"})
	env.DeploymentID = "dep-9"
	dispatch(mgr, env)

	status, ok := feed.Get("dep-9")
	require.True(t, ok)
	assert.Equal(t, "deploying", status.Status)
}

func TestAnalyticsFeed_LatestAndHistory(t *testing.T) {
	mgr, _ := newTestManager(t)
	feed := NewAnalyticsFeed(mgr, "", testLogger())
	defer feed.Close()

	_, ok := feed.Latest()
	assert.False(t, ok)

	for i := int64(1); i <= 3; i++ {
		dispatch(mgr, envelopeOf(t, domain.EventAnalyticsUpdate, domain.AnalyticsUpdatePayload{
			DeploymentID:  "dep-1",
			TotalMessages: i,
		}))
	}

	latest, ok := feed.Latest()
	require.True(t, ok)
	assert.Equal(t, int64(3), latest.TotalMessages)

	history := feed.History()
	require.Len(t, history, 3)
	assert.Equal(t, int64(1), history[0].TotalMessages)
	assert.Equal(t, int64(3), history[2].TotalMessages)
}

func TestAnalyticsFeed_ScopedToDeployment(t *testing.T) {
	mgr, _ := newTestManager(t)
	feed := NewAnalyticsFeed(mgr, "dep-1", testLogger())
	defer feed.Close()

	dispatch(mgr, envelopeOf(t, domain.EventAnalyticsUpdate, domain.AnalyticsUpdatePayload{
		DeploymentID:  "dep-2",
		TotalMessages: 10,
	}))

	_, ok := feed.Latest()
	assert.False(t, ok)
}
