package quantization

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/ZailiWang/sglang/modelconfig"
)

var (
	// ErrUnsupportedMethod is returned for a method with no registered constructor.
	ErrUnsupportedMethod = errors.New("unsupported quantization method")
	// ErrMethodMismatch is returned when a forced method disagrees with the checkpoint.
	ErrMethodMismatch = errors.New("quantization method does not match checkpoint")
	// ErrUnsupportedBlockShape is returned for a weight_block_size that is not
	// a block_n x block_k pair.
	ErrUnsupportedBlockShape = errors.New("unsupported weight block shape")
)

// Config is a quantization scheme built for a specific model.
type Config interface {
	Name() string
}

// BlockSizer is implemented by configs that quantize weights in
// block_n x block_k tiles sharing one scale. WeightBlockSize returns nil when
// the scheme supports blocks but the checkpoint does not use them.
type BlockSizer interface {
	WeightBlockSize() []int
}

// LayerSkipper is implemented by configs that leave some layers
// unquantized.
type LayerSkipper interface {
	IsLayerSkipped(prefix string) (bool, error)
}

// PackedModules maps a fused layer name to the checkpoint layers it is built
// from, for example qkv_proj to q_proj, k_proj and v_proj.
type PackedModules map[string][]string

type constructor func(params map[string]any, packed PackedModules) (Config, error)

var methods = make(map[string]constructor)

// Register registers a constructor for a quantization method.
func Register(name string, f constructor) {
	if _, ok := methods[name]; ok {
		panic("quantization: method already registered")
	}

	methods[name] = f
}

// sidecarFiles are checked, in order, for quantization parameters when the
// checkpoint's config.json has no quantization_config.
var sidecarFiles = []string{"hf_quant_config.json", "quantize_config.json", "quant_config.json"}

// Build returns the quantization config for m, or nil if the model is not
// quantized. The method forced on m takes precedence but must agree with the
// one recorded in the checkpoint.
func Build(m *modelconfig.ModelConfig, l *modelconfig.LoadConfig, packed PackedModules) (Config, error) {
	params, err := checkpointParams(m, l)
	if err != nil {
		return nil, err
	}

	method := strings.ToLower(m.Quantization)
	if checkpoint := paramsMethod(params); checkpoint != "" {
		if method != "" && method != checkpoint {
			return nil, fmt.Errorf("%w: requested %q, checkpoint is %q", ErrMethodMismatch, method, checkpoint)
		}
		method = checkpoint
	}

	if method == "" {
		return nil, nil
	}

	f, ok := methods[method]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}

	if params == nil {
		params = map[string]any{}
	}

	c, err := f(params, packed)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	slog.Debug("quantization config", "method", c.Name())
	return c, nil
}

func checkpointParams(m *modelconfig.ModelConfig, l *modelconfig.LoadConfig) (map[string]any, error) {
	if m.HFConfig != nil && m.HFConfig.QuantizationConfig != nil {
		return m.HFConfig.QuantizationConfig, nil
	}

	fsys := l.FS()
	if fsys == nil {
		return nil, nil
	}

	for _, name := range sidecarFiles {
		if l.Ignored(name) {
			slog.Debug("skipping ignored quantization file", "file", name)
			continue
		}

		bts, err := fs.ReadFile(fsys, name)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		} else if err != nil {
			return nil, err
		}

		var params map[string]any
		if err := json.Unmarshal(bts, &params); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}

		// hf_quant_config.json nests its parameters under "quantization"
		if nested, ok := params["quantization"].(map[string]any); ok {
			params = nested
		}

		return params, nil
	}

	return nil, nil
}

func paramsMethod(params map[string]any) string {
	for _, key := range []string{"quant_method", "quant_algo"} {
		if s, ok := params[key].(string); ok && s != "" {
			return strings.ToLower(s)
		}
	}
	return ""
}

func decode(params map[string]any, v any) error {
	d, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           v,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}

	return d.Decode(params)
}
