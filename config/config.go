// Package config loads and validates the buffer manager's recognized
// options, spec.md §6: dram_gib, partition_bits, free_pct, cool_pct,
// pp_threads, async_batch_size, device_path, truncate, preallocate_gib,
// elevate_priority. The original expressed these as gflags globals
// (FLAGS_dram_gib, FLAGS_partition_bits, ...); here they are bound through
// spf13/viper (environment variables + an optional config file), the same
// tool tuannm99-novasql uses for its service configuration, with
// spf13/pflag providing the CLI-flag source for cmd/bufmgrd.
package config

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config mirrors spec.md §6's "Configuration (recognized options and
// effects)" table one field per option.
type Config struct {
	DRAMGiB          float64 `mapstructure:"dram_gib"`
	PartitionBits    uint8   `mapstructure:"partition_bits"`
	FreePct          float64 `mapstructure:"free_pct"`
	CoolPct          float64 `mapstructure:"cool_pct"`
	PPThreads        int     `mapstructure:"pp_threads"`
	AsyncBatchSize   int     `mapstructure:"async_batch_size"`
	DevicePath       string  `mapstructure:"device_path"`
	Truncate         bool    `mapstructure:"truncate"`
	PreallocateGiB   float64 `mapstructure:"preallocate_gib"`
	ElevatePriority  bool    `mapstructure:"elevate_priority"`
	PageSize         uint32  `mapstructure:"page_size"`
}

// Default returns the set of defaults a freshly created viper.Viper would
// yield before any environment/file/flag overrides are applied.
func Default() Config {
	return Config{
		DRAMGiB:         1,
		PartitionBits:   6,
		FreePct:         10,
		CoolPct:         20,
		PPThreads:       1,
		AsyncBatchSize:  64,
		DevicePath:      "leanbufmgr.db",
		Truncate:        false,
		PreallocateGiB:  0,
		ElevatePriority: false,
		PageSize:        4096,
	}
}

// BindFlags registers every option above onto fs, which cmd/bufmgrd passes
// its *pflag.FlagSet — the Go-idiomatic replacement for the original's
// `DEFINE_uint64(dram_gib, ...)`/`DEFINE_uint64(partition_bits, ...)` gflags
// globals.
func BindFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.Float64("dram_gib", d.DRAMGiB, "DRAM pool size in GiB")
	fs.Uint8("partition_bits", d.PartitionBits, "log2 of the partition count")
	fs.Float64("free_pct", d.FreePct, "percent of N kept free per partition")
	fs.Float64("cool_pct", d.CoolPct, "percent of N kept in the cooling queue per partition")
	fs.Int("pp_threads", d.PPThreads, "number of page-provider agents")
	fs.Int("async_batch_size", d.AsyncBatchSize, "capacity of the AsyncWriteBuffer")
	fs.String("device_path", d.DevicePath, "device/file location")
	fs.Bool("truncate", d.Truncate, "truncate the device file on open")
	fs.Float64("preallocate_gib", d.PreallocateGiB, "GiB to preallocate on the device")
	fs.Bool("elevate_priority", d.ElevatePriority, "pin each page provider's OS thread to its own CPU (best effort); scheduling priority is not changed")
	fs.Uint32("page_size", d.PageSize, "page size in bytes, must be a power of two")
}

// Load builds a Config from viper's merged environment/file/flag sources,
// validating the cross-field invariants spec.md calls out (e.g.
// partitions_count % pp_threads == 0).
func Load(v *viper.Viper) (Config, error) {
	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "config: unmarshal")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the invariants spec.md §5/§6 require of the options.
func (c Config) Validate() error {
	if c.PageSize == 0 || c.PageSize&(c.PageSize-1) != 0 {
		return fmt.Errorf("config: page_size must be a power of two, got %d", c.PageSize)
	}
	partitionsCount := 1 << c.PartitionBits
	if c.PPThreads <= 0 || partitionsCount%c.PPThreads != 0 {
		return fmt.Errorf("config: pp_threads (%d) must divide partitions_count (%d)", c.PPThreads, partitionsCount)
	}
	if c.FreePct < 0 || c.FreePct > 100 {
		return fmt.Errorf("config: free_pct must be within [0, 100], got %v", c.FreePct)
	}
	if c.CoolPct < 0 || c.CoolPct > 100 {
		return fmt.Errorf("config: cool_pct must be within [0, 100], got %v", c.CoolPct)
	}
	if c.AsyncBatchSize <= 0 {
		return fmt.Errorf("config: async_batch_size must be positive, got %d", c.AsyncBatchSize)
	}
	if c.DRAMGiB <= 0 {
		return fmt.Errorf("config: dram_gib must be positive, got %v", c.DRAMGiB)
	}
	return nil
}

// PartitionsCount returns 1 << PartitionBits, spec.md §6.
func (c Config) PartitionsCount() int {
	return 1 << c.PartitionBits
}
