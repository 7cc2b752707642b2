package config

// mergeMaps merges override into base and returns base. Nested sections
// are merged key by key; any other override value replaces the base value.
func mergeMaps(base, override map[string]interface{}) map[string]interface{} {
	if base == nil {
		base = make(map[string]interface{}, len(override))
	}
	for key, value := range override {
		overrideSection, ok := asMap(value)
		if !ok {
			base[key] = value
			continue
		}
		baseSection, ok := asMap(base[key])
		if !ok {
			baseSection = nil
		}
		base[key] = mergeMaps(copyMap(baseSection), overrideSection)
	}
	return base
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			key, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[key] = val
		}
		return out, true
	default:
		return nil, false
	}
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
