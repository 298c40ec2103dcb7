package modelconfig

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/ZailiWang/sglang/envconfig"
)

// ErrMissingField is returned when a config lacks a field needed to size the model.
var ErrMissingField = errors.New("required field missing from config")

// kvHeadKeys are the spellings of the key/value head count, checked in order
// when num_key_value_heads itself is absent.
var kvHeadKeys = []string{"n_head_kv", "num_kv_heads", "multi_query_group_num"}

// ModelConfig is the resolved description of a model. HFConfig is the
// checkpoint's config.json and HFTextConfig is the node describing the
// language model: either HFConfig itself or its text_config. Whenever a
// field is rewritten on one of them it is rewritten on the other.
type ModelConfig struct {
	Architectures []string
	ModelType     string

	HiddenSize        int
	NumAttentionHeads int
	NumKeyValueHeads  int
	HeadDim           int

	// Quantization forces a quantization method. When empty the method is
	// taken from the checkpoint's quantization_config.
	Quantization string

	// Widths set directly on the model config rather than on the checkpoint
	// config. They are only consulted when HFConfig does not carry the field.
	IntermediateSize    *int
	MoEIntermediateSize *int
	IntermediateSizeMLP *int

	HFConfig     *HFConfig
	HFTextConfig *HFConfig
}

// New resolves a ModelConfig from a decoded checkpoint config. An empty
// quantization falls back to SGLANG_QUANTIZATION.
func New(hf *HFConfig, quantization string) (*ModelConfig, error) {
	text := hf
	if hf.TextConfig != nil {
		text = hf.TextConfig
	}

	if text.HiddenSize == nil {
		return nil, fmt.Errorf("%w: hidden_size", ErrMissingField)
	}

	if text.NumAttentionHeads == nil {
		return nil, fmt.Errorf("%w: num_attention_heads", ErrMissingField)
	}

	m := ModelConfig{
		Architectures:     hf.Architectures,
		ModelType:         hf.ModelType,
		HiddenSize:        *text.HiddenSize,
		NumAttentionHeads: *text.NumAttentionHeads,
		Quantization:      cmp.Or(strings.ToLower(quantization), envconfig.Quantization),
		HFConfig:          hf,
		HFTextConfig:      text,
	}

	if len(m.Architectures) == 0 && text != hf {
		m.Architectures = text.Architectures
	}

	if text.NumKeyValueHeads != nil {
		m.NumKeyValueHeads = *text.NumKeyValueHeads
	} else {
		for _, key := range kvHeadKeys {
			if n, ok := asInt(text.Value(key)); ok && n > 0 {
				m.NumKeyValueHeads = n
				break
			}
		}
	}

	if text.HeadDim != nil {
		m.HeadDim = *text.HeadDim
	} else if m.NumAttentionHeads > 0 {
		m.HeadDim = m.HiddenSize / m.NumAttentionHeads
	}

	slog.Debug("model config", "model", &m)
	return &m, nil
}

// Load reads config.json from fsys and resolves it into a ModelConfig.
func Load(fsys fs.FS, quantization string) (*ModelConfig, error) {
	if fsys == nil {
		return nil, fmt.Errorf("config.json: %w", fs.ErrNotExist)
	}

	bts, err := fs.ReadFile(fsys, "config.json")
	if err != nil {
		return nil, err
	}

	var hf HFConfig
	if err := json.Unmarshal(sanitizeNonFiniteJSON(bts), &hf); err != nil {
		return nil, fmt.Errorf("config.json: %w", err)
	}

	return New(&hf, quantization)
}

func (m *ModelConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("architectures", m.Architectures),
		slog.Int("hidden_size", m.HiddenSize),
		slog.Int("num_attention_heads", m.NumAttentionHeads),
		slog.Int("num_key_value_heads", m.TotalNumKVHeads()),
		slog.Int("head_dim", m.HeadDim),
		slog.String("quantization", m.Quantization),
	)
}

// TotalNumKVHeads returns the number of key/value heads across all shards.
// Models without grouped-query attention have one per attention head.
func (m *ModelConfig) TotalNumKVHeads() int {
	if m.NumKeyValueHeads > 0 {
		return m.NumKeyValueHeads
	}
	return m.NumAttentionHeads
}

func (m *ModelConfig) field(f Field) **int {
	switch f {
	case IntermediateSize:
		return &m.IntermediateSize
	case MoEIntermediateSize:
		return &m.MoEIntermediateSize
	case IntermediateSizeMLP:
		return &m.IntermediateSizeMLP
	}
	return nil
}

func (m *ModelConfig) Dim(f Field) (int, bool) {
	return get(m.field(f))
}

func (m *ModelConfig) SetDim(f Field, v int) {
	set(m.field(f), v)
}

// SetHF applies fn to the checkpoint config and, when it is a separate
// node, to the text config so the two never disagree.
func (m *ModelConfig) SetHF(fn func(*HFConfig)) {
	fn(m.HFConfig)
	if m.HFTextConfig != nil && m.HFTextConfig != m.HFConfig {
		fn(m.HFTextConfig)
	}
}

// LoadConfig describes where a model's checkpoint files are read from.
type LoadConfig struct {
	// DownloadDir is the checkpoint directory on disk. It is only consulted
	// when ModelFS is nil.
	DownloadDir string

	// IgnorePatterns are path.Match patterns for checkpoint files that must
	// not be read.
	IgnorePatterns []string

	// ModelFS is the checkpoint directory, if it is available. It is used to
	// locate quantization metadata stored beside config.json.
	ModelFS fs.FS
}

// DefaultLoadConfig returns a LoadConfig populated from the environment.
func DefaultLoadConfig() *LoadConfig {
	return &LoadConfig{
		DownloadDir:    envconfig.DownloadDir,
		IgnorePatterns: envconfig.IgnorePatterns,
	}
}

// FS returns the checkpoint directory, or nil if l names none.
func (l *LoadConfig) FS() fs.FS {
	switch {
	case l == nil:
		return nil
	case l.ModelFS != nil:
		return l.ModelFS
	case l.DownloadDir != "":
		return os.DirFS(l.DownloadDir)
	default:
		return nil
	}
}

// Ignored reports whether the checkpoint file name matches one of the
// ignore patterns.
func (l *LoadConfig) Ignored(name string) bool {
	if l == nil {
		return false
	}

	for _, pattern := range l.IgnorePatterns {
		if ok, err := path.Match(pattern, name); err == nil && ok {
			return true
		}
	}

	return false
}
