package tp

import (
	"fmt"
	"log/slog"

	"github.com/ZailiWang/sglang/logutil"
	"github.com/ZailiWang/sglang/modelconfig"
	"github.com/ZailiWang/sglang/util"
)

var intermediateFields = []modelconfig.Field{
	modelconfig.MoEIntermediateSize,
	modelconfig.IntermediateSize,
	modelconfig.IntermediateSizeMLP,
}

var projectorFields = []modelconfig.Field{
	modelconfig.ProjectorInputDim,
	modelconfig.ProjectorOutputDim,
}

// Adjust pads the head counts and feed-forward widths of m so they divide
// evenly across tpSize shards. m is modified in place and returned.
//
// Adjust must be called at most once per config: the pre-padding head counts
// are recorded in the original_* fields on the first call and a second call
// would overwrite them with padded values. On error m may be partially
// modified and should be discarded.
func Adjust(m *modelconfig.ModelConfig, l *modelconfig.LoadConfig, tpSize int) (*modelconfig.ModelConfig, error) {
	if tpSize < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidShardCount, tpSize)
	}

	if m.NumAttentionHeads < 1 {
		return nil, fmt.Errorf("%w: num_attention_heads %d", ErrInvalidHeadCount, m.NumAttentionHeads)
	}

	if m.TotalNumKVHeads() > m.NumAttentionHeads {
		return nil, fmt.Errorf("%w: num_key_value_heads %d exceeds num_attention_heads %d", ErrInvalidHeadCount, m.TotalNumKVHeads(), m.NumAttentionHeads)
	}

	blockSize, err := WeightBlockSize(m, l)
	if err != nil {
		return nil, err
	}

	heads, kvHeads := m.NumAttentionHeads, m.TotalNumKVHeads()
	if m.HFConfig.OriginalNumAttentionHeads != nil {
		slog.Warn("config already aligned for tensor parallelism, original head counts will be overwritten",
			"original_num_attention_heads", *m.HFConfig.OriginalNumAttentionHeads, "num_attention_heads", heads)
	}

	m.SetHF(func(c *modelconfig.HFConfig) {
		c.OriginalNumAttentionHeads = modelconfig.Int(heads)
		c.OriginalTotalNumKVHeads = modelconfig.Int(kvHeads)
	})

	moePadding, err := MoEPaddingSize(blockSize)
	if err != nil {
		return nil, err
	}

	if !util.Aligned(heads, tpSize) || !util.Aligned(kvHeads, tpSize) {
		padHeads(m, tpSize, blockSize)
	}

	intermediatePadding := tpSize * moePadding
	for _, f := range intermediateFields {
		alignModelDim(m, f, intermediatePadding)
	}

	if v := m.HFConfig.VisionConfig; v != nil {
		if err := alignVision(v, heads, tpSize, blockSize, intermediatePadding); err != nil {
			return nil, fmt.Errorf("vision_config: %w", err)
		}
	}

	return m, nil
}

// padHeads rounds the key/value heads up to the head padding size and scales
// the attention heads with them so each key/value head keeps the same number
// of query heads. The head dimension is pinned first since hidden_size no
// longer equals heads * head_dim afterwards.
func padHeads(m *modelconfig.ModelConfig, tpSize int, blockSize []int) {
	heads, kvHeads := m.NumAttentionHeads, m.TotalNumKVHeads()

	headDim := m.HiddenSize / heads
	if m.HFTextConfig.HeadDim != nil {
		headDim = *m.HFTextConfig.HeadDim
	}

	m.SetHF(func(c *modelconfig.HFConfig) {
		if c.HeadDim == nil {
			c.HeadDim = modelconfig.Int(headDim)
		}
	})

	if m.HeadDim == 0 {
		m.HeadDim = headDim
	}

	queriesPerKV := heads / kvHeads
	padding := HeadPaddingSize(tpSize, blockSize)

	paddedKVHeads := util.RoundUp(kvHeads, padding)
	paddedHeads := paddedKVHeads * queriesPerKV

	m.NumKeyValueHeads = paddedKVHeads
	m.NumAttentionHeads = paddedHeads
	m.SetHF(func(c *modelconfig.HFConfig) {
		c.NumKeyValueHeads = modelconfig.Int(paddedKVHeads)
		c.NumAttentionHeads = modelconfig.Int(paddedHeads)
	})

	slog.Info("padded attention heads for tensor parallelism", "tp_size", tpSize, "padding", padding,
		"num_attention_heads", heads, "padded_num_attention_heads", paddedHeads,
		"num_key_value_heads", kvHeads, "padded_num_key_value_heads", paddedKVHeads, "head_dim", headDim)
}

// alignModelDim pads the field on whichever config carries it: the
// checkpoint and text configs first, then the model config itself.
func alignModelDim(m *modelconfig.ModelConfig, f modelconfig.Field, padding int) {
	for _, c := range []*modelconfig.HFConfig{m.HFConfig, m.HFTextConfig} {
		if v, ok := c.Dim(f); ok {
			if n, padded := pad(f, v, padding); padded {
				m.SetHF(func(hf *modelconfig.HFConfig) { hf.SetDim(f, n) })
			}
			return
		}
	}

	alignDim(m, f, padding)
}

func alignDim(c modelconfig.Dims, f modelconfig.Field, padding int) {
	if v, ok := c.Dim(f); ok {
		if n, padded := pad(f, v, padding); padded {
			c.SetDim(f, n)
		}
	}
}

func pad(f modelconfig.Field, v, padding int) (int, bool) {
	if util.Aligned(v, padding) {
		logutil.Trace("dimension already aligned", "field", f, "value", v, "padding", padding)
		return v, false
	}

	n := util.RoundUp(v, padding)
	slog.Info("updated dimension", "field", f, "value", v, "padded", n)
	return n, true
}

// alignVision pads the vision tower. Unlike the language model, the vision
// hidden size grows with its head count and the head dimension is kept.
// The tower's pre-padding head count is always recorded, falling back to
// textHeads when the tower does not declare one.
func alignVision(v *modelconfig.VisionConfig, textHeads, tpSize int, blockSize []int, intermediatePadding int) error {
	v.OriginalNumAttentionHeads = modelconfig.Int(textHeads)

	if v.NumAttentionHeads != nil {
		heads := *v.NumAttentionHeads
		v.OriginalNumAttentionHeads = modelconfig.Int(heads)

		if !util.Aligned(heads, tpSize) {
			if v.HiddenSize == nil {
				return fmt.Errorf("%w: hidden_size", modelconfig.ErrMissingField)
			}

			if heads < 1 {
				return fmt.Errorf("%w: num_attention_heads %d", ErrInvalidHeadCount, heads)
			}

			headDim := *v.HiddenSize / heads
			paddedHeads := util.RoundUp(heads, HeadPaddingSize(tpSize, blockSize))

			v.HeadDim = modelconfig.Int(headDim)
			v.NumAttentionHeads = modelconfig.Int(paddedHeads)
			v.HiddenSize = modelconfig.Int(headDim * paddedHeads)

			slog.Info("padded vision attention heads for tensor parallelism", "tp_size", tpSize,
				"num_attention_heads", heads, "padded_num_attention_heads", paddedHeads,
				"head_dim", headDim, "hidden_size", *v.HiddenSize)
		}
	}

	alignDim(v, modelconfig.IntermediateSize, intermediatePadding)

	for _, f := range projectorFields {
		alignDim(v, f, tpSize)
	}

	return nil
}
