package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorConfig_LoadLocation(t *testing.T) {
	tests := []struct {
		name     string
		timezone string
		want     string
		wantErr  bool
	}{
		{name: "empty is local", timezone: "", want: time.Local.String()},
		{name: "UTC", timezone: "UTC", want: "UTC"},
		{name: "unknown zone", timezone: "Mars/Olympus_Mons", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := MonitorConfig{Timezone: tt.timezone}
			loc, err := conf.LoadLocation()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.timezone)
				assert.Equal(t, time.Local, conf.Location())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, loc.String())
			assert.Equal(t, tt.want, conf.Location().String())
		})
	}
}
