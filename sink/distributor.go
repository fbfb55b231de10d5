package sink

import (
	"fmt"
	"strings"

	"github.com/INLOpen/lakesink/core"
)

// DistributionMode controls how records are routed to parallel writers.
type DistributionMode string

const (
	// ModeNone keeps each record on the writer that corresponds to its
	// origin subtask; no shuffling happens.
	ModeNone DistributionMode = "none"
	// ModeHash routes records by the hash of their partition key, so every
	// partition is owned by exactly one writer.
	ModeHash DistributionMode = "hash"
	// ModeRange is recognized but not implemented.
	ModeRange DistributionMode = "range"
)

// ParseDistributionMode parses a mode name, case-insensitively.
func ParseDistributionMode(s string) (DistributionMode, error) {
	m := DistributionMode(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case ModeNone, ModeHash, ModeRange:
		return m, nil
	}
	return "", fmt.Errorf("unknown distribution mode %q", s)
}

// distributor picks the destination writer for one record. origin is the
// index of the upstream subtask that produced the record.
type distributor interface {
	route(key core.PartitionKey, origin int) int
}

// noneDistributor preserves the upstream placement.
type noneDistributor struct {
	parallelism int
}

func (d *noneDistributor) route(_ core.PartitionKey, origin int) int {
	return origin % d.parallelism
}

// hashDistributor clusters each partition onto a single writer. Records of an
// unpartitioned table all hash to the same writer.
type hashDistributor struct {
	parallelism int
}

func (d *hashDistributor) route(key core.PartitionKey, _ int) int {
	return int(key.Hash() % uint64(d.parallelism))
}

func newDistributor(mode DistributionMode, parallelism int) (distributor, error) {
	switch mode {
	case ModeNone:
		return &noneDistributor{parallelism: parallelism}, nil
	case ModeHash:
		return &hashDistributor{parallelism: parallelism}, nil
	default:
		return nil, &core.UnsupportedDistributionModeError{Mode: string(mode)}
	}
}
