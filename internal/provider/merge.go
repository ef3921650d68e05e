package provider

// deepMerge merges two JSON-shaped maps. The result has the union of keys;
// when both sides hold an object the merge recurses, otherwise the override
// wins. Arrays and scalars are replaced wholesale.
func deepMerge(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		bv, ok := out[k]
		if !ok {
			out[k] = v
			continue
		}
		bm, bIsMap := bv.(map[string]any)
		om, oIsMap := v.(map[string]any)
		if bIsMap && oIsMap {
			out[k] = deepMerge(bm, om)
		} else {
			out[k] = v
		}
	}
	return out
}
