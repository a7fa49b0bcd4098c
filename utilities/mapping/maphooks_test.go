package mapping

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type accountSnapshot struct {
	Owner    string
	Balance  int64
	OpenedAt time.Time
}

// TestDecodeIntoPassesThroughAlreadyConcreteValue checks the fast path: a
// value already of type T (e.g. from the in-memory snapshot store, which
// never serializes) is returned unchanged without touching mapstructure.
func TestDecodeIntoPassesThroughAlreadyConcreteValue(t *testing.T) {
	want := accountSnapshot{Owner: "ada", Balance: 100}
	got, err := DecodeInto[accountSnapshot](want)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

// TestDecodeIntoRehydratesFromMap checks the JSON-backed path: a
// map[string]interface{} (as json.Unmarshal into `any` would produce) is
// decoded into the concrete struct, including an RFC3339 timestamp string
// converted via MapTimeFromJSON.
func TestDecodeIntoRehydratesFromMap(t *testing.T) {
	openedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	raw := map[string]interface{}{
		"Owner":    "ada",
		"Balance":  int64(100),
		"OpenedAt": openedAt.Format(time.RFC3339),
	}

	got, err := DecodeInto[accountSnapshot](raw)
	require.NoError(t, err)
	assert.Equal(t, "ada", got.Owner)
	assert.Equal(t, int64(100), got.Balance)
	assert.True(t, openedAt.Equal(got.OpenedAt))
}

// TestMapTimeFromJSONLeavesOtherTypesAlone checks that the decoder hook is
// a no-op for any (from, to) pair other than (string, time.Time).
func TestMapTimeFromJSONLeavesOtherTypesAlone(t *testing.T) {
	out, err := MapTimeFromJSON(nil, nil, "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}
