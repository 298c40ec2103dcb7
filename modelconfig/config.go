package modelconfig

import (
	"cmp"
	"encoding/json"
	"iter"
	"maps"
	"slices"

	"github.com/ZailiWang/sglang/fs"
)

// Field names an optional integer width carried by some config dialects.
type Field string

const (
	IntermediateSize    Field = "intermediate_size"
	MoEIntermediateSize Field = "moe_intermediate_size"
	IntermediateSizeMLP Field = "intermediate_size_mlp"
	ProjectorInputDim   Field = "projector_input_dim"
	ProjectorOutputDim  Field = "projector_output_dim"
)

// Dims is implemented by config nodes that carry optional widths. Dim
// reports false for fields the node does not carry or that are unset.
type Dims interface {
	Dim(Field) (int, bool)
	SetDim(Field, int)
}

// HFConfig is one node of a Hugging Face style config.json. Fields that are
// absent from the source stay nil and are not emitted by Map. Keys that are
// not modelled here are carried through unchanged.
type HFConfig struct {
	Architectures []string `mapstructure:"architectures"`
	ModelType     string   `mapstructure:"model_type"`

	HiddenSize        *int `mapstructure:"hidden_size"`
	NumAttentionHeads *int `mapstructure:"num_attention_heads"`
	NumKeyValueHeads  *int `mapstructure:"num_key_value_heads"`
	HeadDim           *int `mapstructure:"head_dim"`

	IntermediateSize    *int `mapstructure:"intermediate_size"`
	MoEIntermediateSize *int `mapstructure:"moe_intermediate_size"`
	IntermediateSizeMLP *int `mapstructure:"intermediate_size_mlp"`

	// Pre-padding head counts, recorded when the config is aligned for
	// tensor parallelism. The weight loader uses them to slice checkpoints.
	OriginalNumAttentionHeads *int `mapstructure:"original_num_attention_heads"`
	OriginalTotalNumKVHeads   *int `mapstructure:"original_total_num_kv_heads"`

	QuantizationConfig map[string]any `mapstructure:"quantization_config"`

	TextConfig   *HFConfig     `mapstructure:"-"`
	VisionConfig *VisionConfig `mapstructure:"-"`

	raw map[string]any
}

var _ fs.Config = (*HFConfig)(nil)

func (c *HFConfig) field(f Field) **int {
	switch f {
	case IntermediateSize:
		return &c.IntermediateSize
	case MoEIntermediateSize:
		return &c.MoEIntermediateSize
	case IntermediateSizeMLP:
		return &c.IntermediateSizeMLP
	}
	return nil
}

func (c *HFConfig) Dim(f Field) (int, bool) {
	return get(c.field(f))
}

func (c *HFConfig) SetDim(f Field, v int) {
	set(c.field(f), v)
}

// Map returns the node as a generic JSON object: the original keys with
// every modelled field overlaid.
func (c *HFConfig) Map() map[string]any {
	m := maps.Clone(c.raw)
	if m == nil {
		m = make(map[string]any)
	}

	if c.Architectures != nil {
		m["architectures"] = c.Architectures
	}

	if c.ModelType != "" {
		m["model_type"] = c.ModelType
	}

	put(m, "hidden_size", c.HiddenSize)
	put(m, "num_attention_heads", c.NumAttentionHeads)
	put(m, "num_key_value_heads", c.NumKeyValueHeads)
	put(m, "head_dim", c.HeadDim)
	put(m, "intermediate_size", c.IntermediateSize)
	put(m, "moe_intermediate_size", c.MoEIntermediateSize)
	put(m, "intermediate_size_mlp", c.IntermediateSizeMLP)
	put(m, "original_num_attention_heads", c.OriginalNumAttentionHeads)
	put(m, "original_total_num_kv_heads", c.OriginalTotalNumKVHeads)

	if c.QuantizationConfig != nil {
		m["quantization_config"] = c.QuantizationConfig
	}

	if c.TextConfig != nil {
		m["text_config"] = c.TextConfig.Map()
	}

	if c.VisionConfig != nil {
		m["vision_config"] = c.VisionConfig.Map()
	}

	return m
}

func (c *HFConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Map())
}

func (c *HFConfig) UnmarshalJSON(bts []byte) error {
	var m map[string]any
	if err := json.Unmarshal(bts, &m); err != nil {
		return err
	}

	decoded, err := decodeHFConfig(m)
	if err != nil {
		return err
	}

	*c = *decoded
	return nil
}

// Architecture returns the first declared architecture class name.
func (c *HFConfig) Architecture() string {
	if len(c.Architectures) > 0 {
		return c.Architectures[0]
	}
	return "unknown"
}

func (c *HFConfig) String(key string, defaultValue ...string) string {
	if s, ok := c.Value(key).(string); ok {
		return s
	}
	return cmp.Or(defaultValue...)
}

func (c *HFConfig) Int(key string, defaultValue ...int) int {
	if n, ok := asInt(c.Value(key)); ok {
		return n
	}
	return cmp.Or(defaultValue...)
}

func (c *HFConfig) Strings(key string, defaultValue ...[]string) []string {
	switch v := c.Value(key).(type) {
	case []string:
		return v
	case []any:
		s := make([]string, 0, len(v))
		for _, e := range v {
			if str, ok := e.(string); ok {
				s = append(s, str)
			}
		}
		return s
	}

	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return nil
}

func (c *HFConfig) Len() int {
	return len(c.Map())
}

func (c *HFConfig) Keys() iter.Seq[string] {
	return slices.Values(slices.Sorted(maps.Keys(c.Map())))
}

func (c *HFConfig) Value(key string) any {
	return c.Map()[key]
}

// VisionConfig is the vision tower of a multimodal config. Dialects spell the
// head count as either num_attention_heads or attention_heads; both are read
// into NumAttentionHeads and written back under whichever spellings the
// source used.
type VisionConfig struct {
	HiddenSize         *int `mapstructure:"hidden_size"`
	HeadDim            *int `mapstructure:"head_dim"`
	IntermediateSize   *int `mapstructure:"intermediate_size"`
	ProjectorInputDim  *int `mapstructure:"projector_input_dim"`
	ProjectorOutputDim *int `mapstructure:"projector_output_dim"`

	NumAttentionHeads         *int `mapstructure:"-"`
	OriginalNumAttentionHeads *int `mapstructure:"original_num_attention_heads"`

	headKeys []string
	raw      map[string]any
}

func (c *VisionConfig) field(f Field) **int {
	switch f {
	case IntermediateSize:
		return &c.IntermediateSize
	case ProjectorInputDim:
		return &c.ProjectorInputDim
	case ProjectorOutputDim:
		return &c.ProjectorOutputDim
	}
	return nil
}

func (c *VisionConfig) Dim(f Field) (int, bool) {
	return get(c.field(f))
}

func (c *VisionConfig) SetDim(f Field, v int) {
	set(c.field(f), v)
}

func (c *VisionConfig) Map() map[string]any {
	m := maps.Clone(c.raw)
	if m == nil {
		m = make(map[string]any)
	}

	put(m, "hidden_size", c.HiddenSize)
	put(m, "head_dim", c.HeadDim)
	put(m, "intermediate_size", c.IntermediateSize)
	put(m, "projector_input_dim", c.ProjectorInputDim)
	put(m, "projector_output_dim", c.ProjectorOutputDim)
	put(m, "original_num_attention_heads", c.OriginalNumAttentionHeads)

	keys := c.headKeys
	if len(keys) == 0 {
		keys = []string{"num_attention_heads"}
	}

	for _, key := range keys {
		put(m, key, c.NumAttentionHeads)
	}

	return m
}

func (c *VisionConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Map())
}

func get(p **int) (int, bool) {
	if p == nil || *p == nil {
		return 0, false
	}
	return **p, true
}

func set(p **int, v int) {
	if p != nil {
		*p = &v
	}
}

func put(m map[string]any, key string, v *int) {
	if v != nil {
		m[key] = *v
	}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
	}
	return 0, false
}

// Int returns a pointer to v. It is a convenience for building configs in
// code.
func Int(v int) *int {
	return &v
}
