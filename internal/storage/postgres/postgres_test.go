package postgres

import (
	"testing"
	"time"

	"github.com/moondesk/ingest-worker/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyRows_FillsMissingTimestamp(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	given := now.Add(-time.Minute)

	rows := copyRows([]models.Reading{
		{SensorID: 1, OrganizationID: "org", Timestamp: given, Value: 1, Parameter: models.ParameterPH, Protocol: models.ProtocolMQTT, Quality: models.QualityGood},
		{SensorID: 2, OrganizationID: "org", Value: 2, Parameter: models.ParameterNone, Protocol: models.ProtocolMQTT, Quality: models.QualityBad},
	}, now)

	require.Len(t, rows, 2)
	assert.Len(t, rows[0], len(readingColumns))
	assert.Equal(t, given, rows[0][2])
	assert.Equal(t, now, rows[1][2])
	assert.Equal(t, "bad", rows[1][6])
	assert.Equal(t, map[string]string{}, rows[1][8])
}

func TestReadingRow_NullsForAbsentValues(t *testing.T) {
	row := readingRow(models.Reading{SensorID: 3, OrganizationID: "org", Value: 4})

	assert.Nil(t, row[2].(*time.Time))
	assert.Nil(t, row[7].(*string))
	assert.Equal(t, map[string]string{}, row[8])
}

func TestReadingRow_KeepsNotes(t *testing.T) {
	row := readingRow(models.Reading{Notes: "calibrated", Metadata: map[string]string{"k": "v"}})

	require.NotNil(t, row[7].(*string))
	assert.Equal(t, "calibrated", *row[7].(*string))
	assert.Equal(t, map[string]string{"k": "v"}, row[8])
}
