package ticket_api

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectedFrameIsJSON(t *testing.T) {
	for _, eventID := range []string{"evt-1", "quote\"and\\slash", "ctl\x7f\x01", "الحفل", "line\nbreak"} {
		frame, err := connectedFrame(eventID)
		require.NoError(t, err)

		var got connectedMessage
		require.NoError(t, json.Unmarshal(frame, &got), "frame %s", frame)
		assert.Equal(t, "connected", got.Status)
		assert.Equal(t, eventID, got.EventID)
		assert.NotContains(t, string(frame), "\n", "a raw newline would split the SSE data line")
	}
}
