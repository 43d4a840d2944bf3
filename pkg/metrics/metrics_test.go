package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/cross19xx/eas-build/pkg/build"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestBuildObserver(t *testing.T) {
	StepsTotal.Reset()
	StepDuration.Reset()
	ArtifactsTotal.Reset()
	BuildsTotal.Reset()
	BuildDuration.Reset()

	o := NewBuildObserver()
	o.StepStarted("demo", 0, "a")
	o.StepFinished("demo", 0, "a", time.Second, []build.Artifact{
		{Type: build.ArtifactTypeApplicationArchive, Path: "/tmp/app.ipa"},
		{Type: build.ArtifactTypeBuildArtifact, Path: "/tmp/a.png"},
		{Type: build.ArtifactTypeBuildArtifact, Path: "/tmp/b.png"},
	}, nil)
	o.StepFinished("demo", 1, "b", time.Second, nil, errors.New("boom"))
	o.WorkflowFinished("demo", build.WorkflowFailed, 2*time.Second)

	assert.Equal(t, float64(1), testutil.ToFloat64(StepsTotal.WithLabelValues("succeeded")))
	assert.Equal(t, float64(1), testutil.ToFloat64(StepsTotal.WithLabelValues("failed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(ArtifactsTotal.WithLabelValues(build.ArtifactTypeApplicationArchive)))
	assert.Equal(t, float64(2), testutil.ToFloat64(ArtifactsTotal.WithLabelValues(build.ArtifactTypeBuildArtifact)))
	assert.Equal(t, float64(1), testutil.ToFloat64(BuildsTotal.WithLabelValues("failed")))
	assert.Equal(t, 2, testutil.CollectAndCount(StepDuration))
	assert.Equal(t, 1, testutil.CollectAndCount(BuildDuration))
}
