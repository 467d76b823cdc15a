package config

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestConfig_PartitionsCount(t *testing.T) {
	cfg := Default()
	cfg.PartitionBits = 4
	assert.Equal(t, 16, cfg.PartitionsCount())
}

func TestValidate_RejectsNonPowerOfTwoPageSize(t *testing.T) {
	cfg := Default()
	cfg.PageSize = 4097
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsPPThreadsNotDividingPartitions(t *testing.T) {
	cfg := Default()
	cfg.PartitionBits = 4 // 16 partitions
	cfg.PPThreads = 5
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsOutOfRangePercentages(t *testing.T) {
	cfg := Default()
	cfg.FreePct = 150
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.CoolPct = -1
	assert.Error(t, cfg.Validate())
}

func TestBindFlags_ThenLoadProducesDefaults(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs)
	require.NoError(t, fs.Parse(nil))

	v := viper.New()
	require.NoError(t, v.BindPFlags(fs))

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestBindFlags_OverrideIsReflectedInLoad(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--pp_threads=4", "--partition_bits=2"}))

	v := viper.New()
	require.NoError(t, v.BindPFlags(fs))

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.PPThreads)
	assert.Equal(t, 4, cfg.PartitionsCount())
}
