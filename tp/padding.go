// Package tp aligns a model configuration to a tensor-parallel shard count.
//
// Head counts and feed-forward widths are padded so every shard receives an
// equal slice of each weight, and so block-quantized weights keep whole
// scale blocks on each shard. Padding only ever grows a dimension; the
// pre-padding head counts are recorded on the config for the weight loader.
package tp

import (
	"errors"
	"fmt"

	"github.com/ZailiWang/sglang/model"
	"github.com/ZailiWang/sglang/modelconfig"
	"github.com/ZailiWang/sglang/quantization"
)

// DefaultMoEPaddingSize is the feed-forward padding granularity per shard
// for models without block-quantized weights.
const DefaultMoEPaddingSize = 32

// ErrUnsupportedBlockShape is returned for a weight block that is not a
// square block_n x block_k pair, whether the checkpoint's quantization
// config or the padding policy rejects it.
var ErrUnsupportedBlockShape = quantization.ErrUnsupportedBlockShape

var (
	// ErrInvalidShardCount is returned for a tensor-parallel size below one.
	ErrInvalidShardCount = errors.New("tensor parallel size must be positive")
	// ErrInvalidHeadCount is returned for head counts that cannot be padded:
	// no attention heads, or more key/value heads than attention heads.
	ErrInvalidHeadCount = errors.New("invalid attention head count")
)

// WeightBlockSize returns the [block_n, block_k] tile size the model's
// weights are quantized with, or nil if they are not block-quantized.
func WeightBlockSize(m *modelconfig.ModelConfig, l *modelconfig.LoadConfig) ([]int, error) {
	arch, err := model.New(m.HFConfig)
	if err != nil {
		return nil, err
	}

	c, err := quantization.Build(m, l, arch.PackedModulesMapping)
	if err != nil {
		return nil, err
	}

	if bs, ok := c.(quantization.BlockSizer); ok {
		return bs.WeightBlockSize(), nil
	}

	return nil, nil
}

// MoEPaddingSize returns the per-shard granularity feed-forward widths are
// padded to. Block-quantized gate and up projections must split on block
// boundaries, so only square blocks are supported.
func MoEPaddingSize(blockSize []int) (int, error) {
	if blockSize == nil {
		return DefaultMoEPaddingSize, nil
	}

	if len(blockSize) != 2 {
		return 0, fmt.Errorf("%w: %v has %d dimensions, want 2", ErrUnsupportedBlockShape, blockSize, len(blockSize))
	}

	if blockSize[0] != blockSize[1] {
		return 0, fmt.Errorf("%w: %v is not square", ErrUnsupportedBlockShape, blockSize)
	}

	return blockSize[0], nil
}

// HeadPaddingSize returns the multiple head counts are padded to. With
// block-quantized weights an odd shard count would leave a head's scales
// split across shards, so heads are padded to pairs of shards instead.
func HeadPaddingSize(tpSize int, blockSize []int) int {
	if tpSize%2 == 1 && blockSize != nil {
		return tpSize * 2
	}
	return tpSize
}
