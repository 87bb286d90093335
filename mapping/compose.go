package mapping

// Clone returns a deep copy of the config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}

	out := *c
	out.Properties = make([]SlotPlan, len(c.Properties))

	for i := range c.Properties {
		out.Properties[i] = *c.Properties[i].clone()
	}

	out.RecordStatusDefaults = c.RecordStatusDefaults.clone()
	out.DataCollectionDefaults = c.DataCollectionDefaults.clone()

	return &out
}

func (s *SlotPlan) clone() *SlotPlan {
	if s == nil {
		return nil
	}

	out := *s
	out.Fields = make([]FieldRule, len(s.Fields))

	for i, f := range s.Fields {
		out.Fields[i] = f
		out.Fields[i].Transforms = append([]string(nil), f.Transforms...)
	}

	return &out
}

// Compose deep-merges overlay onto base and returns a new config.
// Neither input is mutated. Merging is per leaf: a non-zero overlay value
// replaces the base value; slots merge by name and fields merge by
// target, with base declaration order preserved and overlay-only entries
// appended in overlay order.
func Compose(base, overlay *Config) *Config {
	if base == nil {
		return overlay.Clone()
	}

	out := base.Clone()

	if overlay == nil {
		return out
	}

	mergeScalar(&out.Shape, overlay.Shape)
	mergeScalar(&out.Type, overlay.Type)
	mergeScalar(&out.ContextURL, overlay.ContextURL)
	mergeScalar(&out.ContextFile, overlay.ContextFile)
	mergeScalar(&out.BaseURI, overlay.BaseURI)
	mergeScalar(&out.IDSource, overlay.IDSource)
	mergeScalar(&out.IDTransform, overlay.IDTransform)

	out.Properties = mergeSlots(out.Properties, overlay.Properties)
	out.RecordStatusDefaults = mergeSlotPtr(out.RecordStatusDefaults, overlay.RecordStatusDefaults)
	out.DataCollectionDefaults = mergeSlotPtr(out.DataCollectionDefaults, overlay.DataCollectionDefaults)

	return out
}

func mergeScalar(dst *string, overlay string) {
	if overlay != "" {
		*dst = overlay
	}
}

func mergeSlots(base []SlotPlan, overlay []SlotPlan) []SlotPlan {
	byName := make(map[string]int, len(base))
	for i := range base {
		byName[base[i].Name] = i
	}

	for i := range overlay {
		o := &overlay[i]

		if idx, ok := byName[o.Name]; ok {
			base[idx] = *mergeSlot(&base[idx], o)

			continue
		}

		base = append(base, *o.clone())
		byName[o.Name] = len(base) - 1
	}

	return base
}

func mergeSlotPtr(base, overlay *SlotPlan) *SlotPlan {
	if base == nil {
		return overlay.clone()
	}

	if overlay == nil {
		return base
	}

	return mergeSlot(base, overlay)
}

func mergeSlot(base, overlay *SlotPlan) *SlotPlan {
	out := base.clone()

	mergeScalar(&out.Type, overlay.Type)
	mergeScalar(&out.Cardinality, overlay.Cardinality)
	mergeScalar(&out.SplitOn, overlay.SplitOn)

	if overlay.IncludeRecordStatus {
		out.IncludeRecordStatus = true
	}

	if overlay.IncludeDataCollection {
		out.IncludeDataCollection = true
	}

	byTarget := make(map[string]int, len(out.Fields))
	for i := range out.Fields {
		byTarget[out.Fields[i].Target] = i
	}

	for _, of := range overlay.Fields {
		idx, ok := byTarget[of.Target]
		if !ok {
			out.Fields = append(out.Fields, of)
			byTarget[of.Target] = len(out.Fields) - 1

			continue
		}

		out.Fields[idx] = mergeField(out.Fields[idx], of)
	}

	return out
}

func mergeField(base, overlay FieldRule) FieldRule {
	out := base

	mergeScalar(&out.Source, overlay.Source)
	mergeScalar(&out.Datatype, overlay.Datatype)
	mergeScalar(&out.MultiValueSplit, overlay.MultiValueSplit)
	mergeScalar(&out.ValueID, overlay.ValueID)

	if overlay.HasValue {
		out.Value = overlay.Value
		out.HasValue = true
	}

	if overlay.Optional {
		out.Optional = true
	}

	if len(overlay.Transforms) > 0 {
		out.Transforms = append([]string(nil), overlay.Transforms...)
	}

	// A new source origin displaces a literal default from the base.
	if overlay.Source != "" {
		out.Value, out.HasValue, out.ValueID = "", false, ""
	}

	return out
}
