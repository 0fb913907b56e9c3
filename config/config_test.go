package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/canteen-engine/canteen"
	"github.com/warp/canteen-engine/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DB_PATH", "")
	t.Setenv("CUTOFF_HOUR", "")
	t.Setenv("CUTOFF_MINUTE", "")
	t.Setenv("CUTOFF_TZ", "")
	t.Setenv("CORS_ORIGINS", "")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "canteen.db", cfg.DBPath)
	assert.Equal(t, 8, cfg.CutoffHour)
	assert.Equal(t, 0, cfg.CutoffMin)
	assert.Len(t, cfg.CORSOrigins, 2)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("CUTOFF_HOUR", "9")
	t.Setenv("CUTOFF_MINUTE", "30")
	t.Setenv("CORS_ORIGINS", "https://canteen.example.org, https://admin.example.org")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 9, cfg.CutoffHour)
	assert.Equal(t, 30, cfg.CutoffMin)
	assert.Equal(t, []string{"https://canteen.example.org", "https://admin.example.org"}, cfg.CORSOrigins)
}

func TestLoad_CutoffOutOfRange(t *testing.T) {
	t.Setenv("CUTOFF_HOUR", "24")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestCutoff_Timezone(t *testing.T) {
	t.Setenv("CUTOFF_HOUR", "8")
	t.Setenv("CUTOFF_TZ", "Europe/Berlin")

	cfg, err := config.Load()
	require.NoError(t, err)

	policy, err := cfg.Cutoff()
	require.NoError(t, err)
	assert.Equal(t, 8, policy.Hour)
	assert.Equal(t, "Europe/Berlin", policy.Location.String())

	// the deadline lands on the facility's wall clock
	deadline := policy.Deadline(canteen.NewDay(2025, time.June, 10))
	assert.Equal(t, 8, deadline.Hour())
	assert.Equal(t, "Europe/Berlin", deadline.Location().String())
}

func TestCutoff_BadTimezone(t *testing.T) {
	t.Setenv("CUTOFF_TZ", "Mars/Olympus")

	cfg, err := config.Load()
	require.NoError(t, err)

	_, err = cfg.Cutoff()
	assert.Error(t, err)
}
