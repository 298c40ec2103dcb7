package quantization

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZailiWang/sglang/modelconfig"
)

var llamaPacked = PackedModules{
	"qkv_proj":     {"q_proj", "k_proj", "v_proj"},
	"gate_up_proj": {"gate_proj", "up_proj"},
}

func modelWith(params map[string]any, method string) *modelconfig.ModelConfig {
	hf := &modelconfig.HFConfig{QuantizationConfig: params}
	return &modelconfig.ModelConfig{Quantization: method, HFConfig: hf, HFTextConfig: hf}
}

func TestBuild(t *testing.T) {
	cases := []struct {
		name   string
		params map[string]any
		method string
		want   string
		block  []int
		err    error
	}{
		{name: "unquantized"},
		{
			name:   "fp8 block",
			params: map[string]any{"quant_method": "fp8", "weight_block_size": []any{128.0, 128.0}},
			want:   "fp8",
			block:  []int{128, 128},
		},
		{
			name:   "fp8 asymmetric block",
			params: map[string]any{"quant_method": "fp8", "weight_block_size": []any{128.0, 64.0}},
			want:   "fp8",
			block:  []int{128, 64},
		},
		{
			name:   "fp8 per tensor",
			params: map[string]any{"quant_method": "fp8", "activation_scheme": "static"},
			want:   "fp8",
		},
		{
			name:   "forced fp8 without checkpoint config",
			method: "FP8",
			want:   "fp8",
		},
		{
			name:   "blockwise int8",
			params: map[string]any{"quant_method": "blockwise_int8", "weight_block_size": []any{64, 64}},
			want:   "blockwise_int8",
			block:  []int{64, 64},
		},
		{
			name:   "w8a8 fp8",
			params: map[string]any{"quant_method": "w8a8_fp8"},
			want:   "w8a8_fp8",
		},
		{
			name:   "awq",
			params: map[string]any{"quant_method": "awq", "bits": 4.0, "group_size": 128.0, "zero_point": true},
			want:   "awq",
		},
		{
			name:   "gptq",
			params: map[string]any{"quant_method": "gptq", "bits": 8.0, "group_size": 128.0},
			want:   "gptq",
		},
		{
			name:   "compressed tensors",
			params: map[string]any{"quant_method": "compressed-tensors", "format": "float-quantized"},
			want:   "compressed-tensors",
		},
		{
			name:   "matching override",
			params: map[string]any{"quant_method": "fp8"},
			method: "fp8",
			want:   "fp8",
		},
		{
			name:   "mismatched override",
			params: map[string]any{"quant_method": "awq", "bits": 4.0},
			method: "fp8",
			err:    ErrMethodMismatch,
		},
		{
			name:   "unknown method",
			params: map[string]any{"quant_method": "bitnet"},
			err:    ErrUnsupportedMethod,
		},
		{
			name:   "three dimensional block",
			params: map[string]any{"quant_method": "fp8", "weight_block_size": []any{1, 128, 128}},
			err:    ErrUnsupportedBlockShape,
		},
		{
			name:   "blockwise int8 without block",
			params: map[string]any{"quant_method": "blockwise_int8"},
			err:    ErrUnsupportedBlockShape,
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Build(modelWith(tt.params, tt.method), &modelconfig.LoadConfig{}, llamaPacked)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}

			require.NoError(t, err)
			if tt.want == "" {
				assert.Nil(t, c)
				return
			}

			require.NotNil(t, c)
			assert.Equal(t, tt.want, c.Name())

			if bs, ok := c.(BlockSizer); ok {
				assert.Equal(t, tt.block, bs.WeightBlockSize())
			} else {
				assert.Nil(t, tt.block)
			}
		})
	}
}

func TestBuildUnsupportedBits(t *testing.T) {
	_, err := Build(modelWith(map[string]any{"quant_method": "awq", "bits": 8.0}, ""), nil, nil)
	require.Error(t, err)
}

func TestBuildSidecar(t *testing.T) {
	hf := &modelconfig.HFConfig{}
	m := &modelconfig.ModelConfig{HFConfig: hf, HFTextConfig: hf}

	l := &modelconfig.LoadConfig{ModelFS: fstest.MapFS{
		"quantize_config.json": {Data: []byte(`{"quant_method": "gptq", "bits": 4, "group_size": 128, "desc_act": false}`)},
	}}

	c, err := Build(m, l, nil)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "gptq", c.Name())

	l.ModelFS = fstest.MapFS{
		"hf_quant_config.json": {Data: []byte(`{"quantization": {"quant_algo": "FP8"}}`)},
	}

	c, err = Build(m, l, nil)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "fp8", c.Name())

	l.ModelFS = fstest.MapFS{"quant_config.json": {Data: []byte(`{`)}}
	_, err = Build(m, l, nil)
	require.Error(t, err)

	l.ModelFS = fstest.MapFS{}
	c, err = Build(m, l, nil)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestIsLayerSkipped(t *testing.T) {
	c, err := Build(modelWith(map[string]any{
		"quant_method": "fp8",
		"ignored_layers": []any{
			"model.layers.0.self_attn.q_proj",
			"model.layers.0.self_attn.k_proj",
			"model.layers.0.self_attn.v_proj",
			"model.layers.1.self_attn.q_proj",
			"lm_head",
		},
		"weight_block_size": []any{128, 128},
	}, ""), nil, llamaPacked)
	require.NoError(t, err)

	skipper, ok := c.(LayerSkipper)
	require.True(t, ok)

	cases := []struct {
		prefix  string
		skipped bool
		err     bool
	}{
		{prefix: "model.layers.0.self_attn.qkv_proj", skipped: true},
		{prefix: "model.layers.2.self_attn.qkv_proj"},
		{prefix: "model.layers.1.self_attn.qkv_proj", err: true},
		{prefix: "lm_head", skipped: true},
		{prefix: "model.layers.0.mlp.down_proj"},
	}

	for _, tt := range cases {
		t.Run(tt.prefix, func(t *testing.T) {
			skipped, err := skipper.IsLayerSkipped(tt.prefix)
			if tt.err {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.skipped, skipped)
		})
	}
}

func TestRegisterDuplicate(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic")
		}
	}()

	Register("fp8", newFP8)
}

func TestBuildWrapsConstructorErrors(t *testing.T) {
	_, err := Build(modelWith(map[string]any{"quant_method": "fp8", "weight_block_size": []any{128}}, ""), nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedBlockShape))
	assert.Contains(t, err.Error(), "fp8:")
}

func TestBuildSidecarIgnored(t *testing.T) {
	hf := &modelconfig.HFConfig{}
	m := &modelconfig.ModelConfig{HFConfig: hf, HFTextConfig: hf}

	l := &modelconfig.LoadConfig{
		IgnorePatterns: []string{"quantize_*.json"},
		ModelFS: fstest.MapFS{
			"quantize_config.json": {Data: []byte(`{"quant_method": "gptq", "bits": 4}`)},
			"quant_config.json":    {Data: []byte(`{"quant_method": "awq", "bits": 4}`)},
		},
	}

	c, err := Build(m, l, nil)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "awq", c.Name())
}

func TestBuildSidecarDownloadDir(t *testing.T) {
	hf := &modelconfig.HFConfig{}
	m := &modelconfig.ModelConfig{HFConfig: hf, HFTextConfig: hf}

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hf_quant_config.json"),
		[]byte(`{"quantization": {"quant_algo": "FP8"}}`), 0o644))

	c, err := Build(m, &modelconfig.LoadConfig{DownloadDir: dir}, nil)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "fp8", c.Name())
}
