package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithConfig(t *testing.T) {
	ctx := context.Background()

	_, ok := GetConfig[StreamConfig](ctx)
	assert.False(t, ok)

	ctx = WithConfig(ctx, StreamConfig{BufferSize: 8})
	cfg, ok := GetConfig[StreamConfig](ctx)
	require.True(t, ok)
	assert.Equal(t, 8, cfg.BufferSize)
	assert.Equal(t, 8, BufferSize(ctx))

	ctx = WithConfig(ctx, StreamConfig{BufferSize: 2})
	assert.Equal(t, 2, BufferSize(ctx))
}

func TestBufferSizeDefaultsToUnbuffered(t *testing.T) {
	assert.Equal(t, 0, BufferSize(context.Background()))
}

type windowConfig struct {
	Size int `validate:"gt=0"`
	Step int `validate:"gt=0,ltefield=Size"`
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     windowConfig
		wantErr bool
	}{
		{name: "valid", cfg: windowConfig{Size: 3, Step: 1}},
		{name: "zero size", cfg: windowConfig{Size: 0, Step: 1}, wantErr: true},
		{name: "step larger than size", cfg: windowConfig{Size: 2, Step: 3}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfig("window", tt.cfg)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var conf *ConfigurationError
			require.ErrorAs(t, err, &conf)
			assert.Equal(t, "window", conf.Op)
		})
	}
}

func TestMustValidatePanicsWithConfigurationError(t *testing.T) {
	defer func() {
		r := recover()
		require.NotNil(t, r)
		_, ok := r.(*ConfigurationError)
		assert.True(t, ok)
	}()
	MustValidate("window", windowConfig{})
}
