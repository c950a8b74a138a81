package variables

// WalkBinaryData calls fn for every BinaryData handle reachable in v,
// descending through Mapping/map[string]any/[]any nodes. It stops and
// returns the first error fn produces.
func WalkBinaryData(v Value, fn func(BinaryData) error) error {
	switch t := v.(type) {
	case BinaryData:
		return fn(t)
	case Mapping:
		for _, child := range t {
			if err := WalkBinaryData(child, fn); err != nil {
				return err
			}
		}
	case map[string]any:
		for _, child := range t {
			if err := WalkBinaryData(child, fn); err != nil {
				return err
			}
		}
	case []any:
		for _, child := range t {
			if err := WalkBinaryData(child, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// InitializeBinaryData walks v calling Initialize on every BinaryData
// handle reachable from it, the perform-entry step of the binary-data
// lifecycle.
func InitializeBinaryData(v Value) error {
	return WalkBinaryData(v, func(b BinaryData) error { return b.Initialize() })
}

// DestroyBinaryData walks v calling Destroy on every BinaryData handle
// reachable from it, the successful-perform-exit step of the lifecycle.
func DestroyBinaryData(v Value) error {
	return WalkBinaryData(v, func(b BinaryData) error { return b.Destroy() })
}

// MaterializeBinaryData returns a copy of v with every BinaryData handle
// replaced by its fully-read bytes via GetAllData, the final-outcome-
// resolution step that resolves any remaining deferred binary data
// before a result leaves the runtime.
func MaterializeBinaryData(v Value) (Value, error) {
	switch t := v.(type) {
	case BinaryData:
		return t.GetAllData()
	case Mapping:
		out := make(Mapping, len(t))
		for k, child := range t {
			m, err := MaterializeBinaryData(child)
			if err != nil {
				return nil, err
			}
			out[k] = m
		}
		return out, nil
	case map[string]any:
		out := make(Mapping, len(t))
		for k, child := range t {
			m, err := MaterializeBinaryData(child)
			if err != nil {
				return nil, err
			}
			out[k] = m
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			m, err := MaterializeBinaryData(child)
			if err != nil {
				return nil, err
			}
			out[i] = m
		}
		return out, nil
	default:
		return v, nil
	}
}
