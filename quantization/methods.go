package quantization

import (
	"fmt"
	"slices"
	"strings"
)

func init() {
	Register("fp8", newFP8)
	Register("blockwise_int8", newBlockwiseInt8)
	Register("w8a8_fp8", newW8A8FP8)
	Register("awq", newAWQ)
	Register("gptq", newGPTQ)
	Register("compressed-tensors", newCompressedTensors)
}

// ignoreList is the set of layers a checkpoint leaves unquantized, together
// with the fused layers they may be packed into.
type ignoreList struct {
	layers []string
	packed PackedModules
}

// IsLayerSkipped reports whether the layer at prefix is unquantized. A fused
// layer is skipped only if every shard it packs is skipped.
func (l ignoreList) IsLayerSkipped(prefix string) (bool, error) {
	name := prefix[strings.LastIndex(prefix, ".")+1:]

	shards, ok := l.packed[name]
	if !ok {
		return slices.Contains(l.layers, prefix), nil
	}

	var skipped *bool
	for _, shard := range shards {
		s := slices.Contains(l.layers, strings.Replace(prefix, name, shard, 1))
		if skipped == nil {
			skipped = &s
		} else if *skipped != s {
			return false, fmt.Errorf("some but not all shards of %s are quantized", prefix)
		}
	}

	return skipped != nil && *skipped, nil
}

type blockConfig struct {
	ignoreList

	ActivationScheme string   `mapstructure:"activation_scheme"`
	IgnoredLayers    []string `mapstructure:"ignored_layers"`
	NotConvert       []string `mapstructure:"modules_to_not_convert"`
	BlockSize        []int    `mapstructure:"weight_block_size"`
}

func newBlockConfig(params map[string]any, packed PackedModules) (blockConfig, error) {
	c := blockConfig{ActivationScheme: "dynamic"}
	if err := decode(params, &c); err != nil {
		return c, err
	}

	if c.BlockSize != nil && len(c.BlockSize) != 2 {
		return c, fmt.Errorf("%w: weight_block_size %v has %d dimensions, want 2", ErrUnsupportedBlockShape, c.BlockSize, len(c.BlockSize))
	}

	c.ignoreList = ignoreList{
		layers: append(slices.Clone(c.IgnoredLayers), c.NotConvert...),
		packed: packed,
	}
	return c, nil
}

func (c blockConfig) WeightBlockSize() []int {
	return c.BlockSize
}

type fp8Config struct {
	blockConfig
}

func newFP8(params map[string]any, packed PackedModules) (Config, error) {
	c, err := newBlockConfig(params, packed)
	if err != nil {
		return nil, err
	}

	if c.BlockSize != nil && c.ActivationScheme != "dynamic" {
		return nil, fmt.Errorf("block-wise quantization requires dynamic activations, got %q", c.ActivationScheme)
	}

	return &fp8Config{c}, nil
}

func (fp8Config) Name() string { return "fp8" }

type blockwiseInt8Config struct {
	blockConfig
}

func newBlockwiseInt8(params map[string]any, packed PackedModules) (Config, error) {
	c, err := newBlockConfig(params, packed)
	if err != nil {
		return nil, err
	}

	if c.BlockSize == nil {
		return nil, fmt.Errorf("%w: weight_block_size is required", ErrUnsupportedBlockShape)
	}

	return &blockwiseInt8Config{c}, nil
}

func (blockwiseInt8Config) Name() string { return "blockwise_int8" }

type w8a8FP8Config struct {
	ignoreList
}

func newW8A8FP8(params map[string]any, packed PackedModules) (Config, error) {
	var p struct {
		Ignore []string `mapstructure:"ignore"`
	}
	if err := decode(params, &p); err != nil {
		return nil, err
	}

	return &w8a8FP8Config{ignoreList{layers: p.Ignore, packed: packed}}, nil
}

func (w8a8FP8Config) Name() string { return "w8a8_fp8" }

type groupConfig struct {
	name       string
	Bits       int      `mapstructure:"bits"`
	GroupSize  int      `mapstructure:"group_size"`
	ZeroPoint  bool     `mapstructure:"zero_point"`
	DescAct    bool     `mapstructure:"desc_act"`
	NotConvert []string `mapstructure:"modules_to_not_convert"`
}

func newGroupConfig(name string, supportedBits ...int) constructor {
	return func(params map[string]any, _ PackedModules) (Config, error) {
		c := groupConfig{name: name}
		if err := decode(params, &c); err != nil {
			return nil, err
		}

		if !slices.Contains(supportedBits, c.Bits) {
			return nil, fmt.Errorf("%d-bit weights are not supported, want one of %v", c.Bits, supportedBits)
		}

		return &c, nil
	}
}

var (
	newAWQ  = newGroupConfig("awq", 4)
	newGPTQ = newGroupConfig("gptq", 2, 3, 4, 8)
)

func (c *groupConfig) Name() string { return c.name }

type compressedTensorsConfig struct {
	ignoreList
	Format string `mapstructure:"format"`
}

func newCompressedTensors(params map[string]any, packed PackedModules) (Config, error) {
	var c struct {
		Format string   `mapstructure:"format"`
		Ignore []string `mapstructure:"ignore"`
	}
	if err := decode(params, &c); err != nil {
		return nil, err
	}

	return &compressedTensorsConfig{
		ignoreList: ignoreList{layers: c.Ignore, packed: packed},
		Format:     c.Format,
	}, nil
}

func (compressedTensorsConfig) Name() string { return "compressed-tensors" }
