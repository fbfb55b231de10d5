package sink

import (
	"github.com/INLOpen/lakesink/config"
	"github.com/INLOpen/lakesink/core"
	"github.com/INLOpen/lakesink/table"
	"github.com/spf13/afero"
)

// FromConfig loads the table named by cfg and assembles a sink with the
// configured write options. Empty mode and format inherit the table's write
// properties, matching the builder's defaults.
func FromConfig(fs afero.Fs, cfg *config.Config) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.BuildLogger()

	tbl, err := table.Load(fs, cfg.Table.Dir, table.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	b := NewBuilder(tbl).
		WriteParallelism(cfg.Write.Parallelism).
		AutoCompact(cfg.Compaction.Auto).
		Logger(logger)

	if cfg.Write.DistributionMode != "" {
		mode, err := ParseDistributionMode(cfg.Write.DistributionMode)
		if err != nil {
			return nil, err
		}
		b.DistributionMode(mode)
	}
	if cfg.Write.Format != "" {
		format, err := core.ParseFileFormat(cfg.Write.Format)
		if err != nil {
			return nil, err
		}
		b.Format(format)
	}
	if cfg.Write.TargetFileSizeBytes > 0 {
		b.TargetFileSize(cfg.Write.TargetFileSizeBytes)
	}
	if cfg.Write.BlockSizeBytes > 0 {
		b.BlockSize(cfg.Write.BlockSizeBytes)
	}
	if cfg.Compaction.Concurrency > 0 {
		b.CompactionConcurrency(cfg.Compaction.Concurrency)
	}
	return b.Build()
}
