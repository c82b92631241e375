package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDate_JSON(t *testing.T) {
	t.Parallel()

	d := NewDate(1990, time.March, 15)
	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"1990-03-15"`, string(data))

	var parsed Date
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.True(t, parsed.Equal(d.Time))
}

func TestDate_UnmarshalInvalid(t *testing.T) {
	t.Parallel()

	var d Date
	assert.Error(t, json.Unmarshal([]byte(`"15/03/1990"`), &d))

	require.NoError(t, json.Unmarshal([]byte(`null`), &d))
	assert.True(t, d.IsZero())
}

func TestDate_Scan(t *testing.T) {
	t.Parallel()

	want := NewDate(1985, time.July, 1)

	var fromTime Date
	require.NoError(t, fromTime.Scan(want.Time))
	assert.True(t, fromTime.Equal(want.Time))

	var fromString Date
	require.NoError(t, fromString.Scan("1985-07-01"))
	assert.Equal(t, "1985-07-01", fromString.String())

	var fromBytes Date
	require.NoError(t, fromBytes.Scan([]byte("1985-07-01")))
	assert.Equal(t, "1985-07-01", fromBytes.String())

	var d Date
	assert.Error(t, d.Scan(42))
}
