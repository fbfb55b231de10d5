package sink

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/INLOpen/lakesink/core"
	"github.com/INLOpen/lakesink/datafile"
	"github.com/INLOpen/lakesink/hooks"
	"github.com/INLOpen/lakesink/partition"
	"github.com/INLOpen/lakesink/table"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/trace"
)

// Builder assembles a Sink over an existing table. Unset options fall back
// to the table's write properties, then to fixed defaults.
type Builder struct {
	tbl *table.Table

	parallelism    int
	mode           DistributionMode
	modeSet        bool
	format         core.FileFormat
	inputSchema    *core.Schema
	autoCompact    bool
	targetFileSize int64
	blockSize      int
	compactWorkers int64
	logger         *slog.Logger
	tracer         trace.Tracer
	hookManager    hooks.HookManager
}

// NewBuilder starts configuring a sink that writes into tbl.
func NewBuilder(tbl *table.Table) *Builder {
	return &Builder{tbl: tbl, parallelism: 1}
}

// WriteParallelism sets the number of parallel writer instances.
func (b *Builder) WriteParallelism(n int) *Builder {
	b.parallelism = n
	return b
}

// DistributionMode overrides how records are shuffled to writers. When not
// called, the table's write.distribution-mode property applies, and absent
// that, ModeNone.
func (b *Builder) DistributionMode(mode DistributionMode) *Builder {
	b.mode = mode
	b.modeSet = true
	return b
}

// Format sets the file format of produced data files. Defaults to the
// table's write.format.default property.
func (b *Builder) Format(f core.FileFormat) *Builder {
	b.format = f
	return b
}

// InputSchema declares the shape of incoming records when it differs from
// the table schema. Fields are matched by name and reordered; every table
// field must be present with an identical type.
func (b *Builder) InputSchema(s core.Schema) *Builder {
	b.inputSchema = &s
	return b
}

// AutoCompact enables small-file compaction after every committed
// checkpoint.
func (b *Builder) AutoCompact(enabled bool) *Builder {
	b.autoCompact = enabled
	return b
}

// TargetFileSize overrides the roll-over threshold for data files, which
// doubles as the small-file bound for compaction. Defaults to the table's
// write.target-file-size-bytes property.
func (b *Builder) TargetFileSize(bytes int64) *Builder {
	b.targetFileSize = bytes
	return b
}

// BlockSize sets the uncompressed block size inside data files.
func (b *Builder) BlockSize(bytes int) *Builder {
	b.blockSize = bytes
	return b
}

// CompactionConcurrency bounds how many partitions compact at once.
func (b *Builder) CompactionConcurrency(n int64) *Builder {
	b.compactWorkers = n
	return b
}

// Logger sets the sink's logger. Defaults to a discarding logger.
func (b *Builder) Logger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// Tracer enables tracing of commits, checkpoints and compactions.
func (b *Builder) Tracer(tracer trace.Tracer) *Builder {
	b.tracer = tracer
	return b
}

// HookManager replaces the sink's internal event bus, letting embedders
// observe commits and compactions.
func (b *Builder) HookManager(m hooks.HookManager) *Builder {
	b.hookManager = m
	return b
}

// Build validates the configuration and assembles the sink. Unsupported
// distribution modes are rejected here, not at runtime.
func (b *Builder) Build() (*Sink, error) {
	if b.parallelism < 1 || b.parallelism > core.MaxWriterID {
		return nil, fmt.Errorf("write parallelism %d out of range [1, %d]", b.parallelism, core.MaxWriterID)
	}

	meta, err := b.tbl.Metadata()
	if err != nil {
		return nil, err
	}
	schema := meta.Schema
	spec := meta.PartitionSpec

	mode := ModeNone
	switch {
	case b.modeSet:
		mode = b.mode
	default:
		if raw, ok := meta.Properties[table.PropertyDistributionMode]; ok {
			mode, err = ParseDistributionMode(raw)
			if err != nil {
				return nil, err
			}
		}
	}
	dist, err := newDistributor(mode, b.parallelism)
	if err != nil {
		return nil, err
	}

	format := b.format
	if format == "" {
		format = meta.DefaultFormat()
	}
	if !format.Valid() {
		return nil, fmt.Errorf("unknown file format %q", format)
	}

	targetFileSize := b.targetFileSize
	if targetFileSize <= 0 {
		targetFileSize = meta.TargetFileSize()
	}
	blockSize := b.blockSize
	if blockSize <= 0 {
		blockSize = datafile.DefaultBlockSize
	}

	extractor, err := partition.NewExtractor(spec, schema)
	if err != nil {
		return nil, err
	}

	var projection []int
	inputSchema := schema
	if b.inputSchema != nil {
		inputSchema = *b.inputSchema
		projection, err = inputSchema.Projection(schema)
		if err != nil {
			return nil, err
		}
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	hookManager := b.hookManager
	if hookManager == nil {
		hookManager = hooks.NewHookManager(logger)
	}

	stats, err := NewFileSizeStats()
	if err != nil {
		return nil, err
	}

	// All sink components address files relative to the table root.
	tfs := afero.NewBasePathFs(b.tbl.FS(), b.tbl.Dir())

	wcfg := writerConfig{
		fs:             tfs,
		dataDir:        core.DataDirName,
		extractor:      extractor,
		projection:     projection,
		format:         format,
		targetFileSize: targetFileSize,
		blockSize:      blockSize,
		stats:          stats,
		logger:         logger,
		tracer:         b.tracer,
	}
	writers := make([]*Writer, b.parallelism)
	for i := range writers {
		writers[i] = newWriter(i, wcfg)
	}

	coord, err := NewCoordinator(coordinatorConfig{
		table:       b.tbl,
		fs:          tfs,
		parallelism: b.parallelism,
		hooks:       hookManager,
		logger:      logger,
		tracer:      b.tracer,
	})
	if err != nil {
		return nil, err
	}

	s := &Sink{
		tbl:         b.tbl,
		writers:     writers,
		dist:        dist,
		coord:       coord,
		hooks:       hookManager,
		extractor:   extractor,
		projection:  projection,
		inputSchema: inputSchema,
		stats:       stats,
		logger:      logger,
		tracer:      b.tracer,
	}

	if b.autoCompact {
		s.compactor = NewCompactor(compactorConfig{
			table:          b.tbl,
			fs:             tfs,
			format:         format,
			targetFileSize: targetFileSize,
			blockSize:      blockSize,
			concurrency:    b.compactWorkers,
			hooks:          hookManager,
			logger:         logger,
			tracer:         b.tracer,
		})
		hookManager.Register(hooks.EventPostCommit, &FuncCompactionTrigger{compactor: s.compactor})
	}
	return s, nil
}

// FuncCompactionTrigger runs a compaction pass after every committed
// checkpoint. It runs synchronously so that a bounded pipeline finishes with
// its table fully compacted.
type FuncCompactionTrigger struct {
	compactor *Compactor
}

func (t *FuncCompactionTrigger) OnEvent(ctx context.Context, event hooks.HookEvent) error {
	return t.compactor.CompactAll(ctx)
}

func (t *FuncCompactionTrigger) Priority() int { return 100 }
func (t *FuncCompactionTrigger) IsAsync() bool { return false }
