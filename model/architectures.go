package model

var (
	qkvGateUp = map[string][]string{
		"qkv_proj":     {"q_proj", "k_proj", "v_proj"},
		"gate_up_proj": {"gate_proj", "up_proj"},
	}

	mlaGateUp = map[string][]string{
		"fused_qkv_a_proj_with_mqa": {"q_a_proj", "kv_a_proj_with_mqa"},
		"gate_up_proj":              {"gate_proj", "up_proj"},
	}
)

func init() {
	Register(&Architecture{Name: "LlamaForCausalLM", PackedModulesMapping: qkvGateUp},
		"MistralForCausalLM",
		"InternLM3ForCausalLM",
	)
	Register(&Architecture{Name: "MixtralForCausalLM", PackedModulesMapping: map[string][]string{
		"qkv_proj": {"q_proj", "k_proj", "v_proj"},
	}})
	Register(&Architecture{Name: "Qwen2ForCausalLM", PackedModulesMapping: qkvGateUp},
		"Qwen3ForCausalLM",
	)
	Register(&Architecture{Name: "Qwen2MoeForCausalLM", PackedModulesMapping: qkvGateUp},
		"Qwen3MoeForCausalLM",
	)
	Register(&Architecture{Name: "DeepseekV3ForCausalLM", PackedModulesMapping: mlaGateUp},
		"DeepseekV2ForCausalLM",
	)
	Register(&Architecture{Name: "Gemma3ForConditionalGeneration", PackedModulesMapping: qkvGateUp},
		"Gemma3ForCausalLM",
	)
	Register(&Architecture{Name: "MllamaForConditionalGeneration", PackedModulesMapping: qkvGateUp})
	Register(&Architecture{Name: "Llama4ForConditionalGeneration", PackedModulesMapping: qkvGateUp})
	Register(&Architecture{Name: "Qwen2_5_VLForConditionalGeneration", PackedModulesMapping: qkvGateUp},
		"Qwen2VLForConditionalGeneration",
	)
	Register(&Architecture{Name: "Phi3ForCausalLM", PackedModulesMapping: map[string][]string{
		"qkv_proj":     {"qkv_proj"},
		"gate_up_proj": {"gate_up_proj"},
	}})
	Register(&Architecture{Name: "BertModel"})
}
