package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMonitor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    string
		want    bool
		wantErr bool
	}{
		{name: "bare true", data: `true`, want: true},
		{name: "bare false", data: `false`, want: false},
		{name: "object", data: `{"active":true}`, want: true},
		{name: "empty object", data: `{}`, want: false},
		{name: "string", data: `"yes"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := parseMonitor([]byte(tt.data))
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCookieValue(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Boss Pilot", cookieValue("Boss%20Pilot"))
	assert.Equal(t, "Plain", cookieValue("Plain"))
	assert.Equal(t, "100%", cookieValue("100%"))
}
