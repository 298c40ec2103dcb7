package modelconfig

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// visionHeadKeys lists the spellings of the vision head count in the order
// they take precedence: a later key overrides an earlier one.
var visionHeadKeys = []string{"num_attention_heads", "attention_heads"}

func decode(m map[string]any, v any) error {
	d, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           v,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}

	return d.Decode(m)
}

func decodeHFConfig(m map[string]any) (*HFConfig, error) {
	var c HFConfig
	if err := decode(m, &c); err != nil {
		return nil, err
	}

	c.raw = m

	if text, ok := m["text_config"]; ok && text != nil {
		tm, ok := text.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("text_config: expected object, got %T", text)
		}

		tc, err := decodeHFConfig(tm)
		if err != nil {
			return nil, fmt.Errorf("text_config: %w", err)
		}

		c.TextConfig = tc
	}

	if vision, ok := m["vision_config"]; ok && vision != nil {
		vm, ok := vision.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("vision_config: expected object, got %T", vision)
		}

		vc, err := decodeVisionConfig(vm)
		if err != nil {
			return nil, fmt.Errorf("vision_config: %w", err)
		}

		c.VisionConfig = vc
	}

	return &c, nil
}

func decodeVisionConfig(m map[string]any) (*VisionConfig, error) {
	var c VisionConfig
	if err := decode(m, &c); err != nil {
		return nil, err
	}

	c.raw = m

	for _, key := range visionHeadKeys {
		v, ok := m[key]
		if !ok {
			continue
		}

		var heads int
		if err := mapstructure.WeakDecode(v, &heads); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}

		c.NumAttentionHeads = &heads
		c.headKeys = append(c.headKeys, key)
	}

	return &c, nil
}
