package checkpoint_test

import (
	"testing"

	"github.com/randalmurphal/trainkeep/pkg/trainkeep/checkpoint"
	"github.com/randalmurphal/trainkeep/pkg/trainkeep/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFrom(t *testing.T) {
	t.Run("empty section uses defaults", func(t *testing.T) {
		got := checkpoint.ConfigFrom(config.New(nil))
		assert.Equal(t, checkpoint.DefaultConfig(), got)
	})

	t.Run("yaml overrides", func(t *testing.T) {
		cfg, err := config.FromYAML([]byte(`
checkpoint:
  checkpoint_prefix: ckpt
  checkpoint_dir: /data/run1
  recovery_dir: /scratch/run1
  max_history: 3
`))
		require.NoError(t, err)

		got := checkpoint.ConfigFrom(cfg.Section("checkpoint"))
		assert.Equal(t, checkpoint.Config{
			CheckpointPrefix: "ckpt",
			RecoveryPrefix:   checkpoint.DefaultRecoveryPrefix,
			CheckpointDir:    "/data/run1",
			RecoveryDir:      "/scratch/run1",
			MaxHistory:       3,
		}, got)
		assert.NoError(t, got.Validate())
	})

	t.Run("invalid max history surfaces at validation", func(t *testing.T) {
		got := checkpoint.ConfigFrom(config.New(map[string]any{"max_history": 0}))
		assert.ErrorIs(t, got.Validate(), checkpoint.ErrInvalidMaxHistory)
	})
}
