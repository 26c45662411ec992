package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordExperienceAwarded(t *testing.T) {
	before := testutil.ToFloat64(experienceCounter.WithLabelValues("run"))

	RecordExperienceAwarded("run", 275)
	RecordExperienceAwarded("run", 0)
	RecordExperienceAwarded("run", -10)

	assert.Equal(t, before+275, testutil.ToFloat64(experienceCounter.WithLabelValues("run")))
}

func TestRecordActivityPersistedIgnoresZeroTime(t *testing.T) {
	ts := time.Date(2025, time.March, 1, 10, 0, 0, 0, time.UTC)
	RecordActivityPersisted(ts)
	RecordActivityPersisted(time.Time{})

	assert.Equal(t, float64(ts.Unix()), testutil.ToFloat64(activityPersistGauge))
}

func TestRecordTerritoryAction(t *testing.T) {
	before := testutil.ToFloat64(territoryCounter.WithLabelValues("conquered"))
	RecordTerritoryAction("conquered")
	assert.Equal(t, before+1, testutil.ToFloat64(territoryCounter.WithLabelValues("conquered")))
}
