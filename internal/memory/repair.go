package memory

import "encoding/json"

// Tolerant construction of a typed Snapshot from untrusted JSON. Persisted
// state may predate the schema, carry wrong types, or be truncated; none
// of that is an error. Fields that cannot be coerced become their zero
// defaults and the result always passes Normalize. This is the only path
// from raw bytes into the typed model.

// SnapshotFromJSON parses raw bytes into a normalized snapshot. Invalid
// JSON yields an empty snapshot.
func SnapshotFromJSON(data []byte, lim Limits) *Snapshot {
	var root map[string]any
	if err := json.Unmarshal(data, &root); err != nil {
		return DefaultSnapshot()
	}
	return SnapshotFromMap(root, lim)
}

// SnapshotFromMap coerces a decoded JSON object into a snapshot.
func SnapshotFromMap(root map[string]any, lim Limits) *Snapshot {
	s := &Snapshot{Users: map[string]*Document{}}

	meta := asMap(root["_meta"])
	s.Meta.SchemaVersion = int(asFloat(meta["schemaVersion"]))
	s.Meta.UpdatedAt = asString(meta["updatedAt"])

	for userID, raw := range asMap(root["users"]) {
		s.Users[userID] = documentFromMap(asMap(raw))
	}

	Migrate(s, lim)
	for _, doc := range s.Users {
		Normalize(doc, lim)
	}
	return s
}

func documentFromMap(m map[string]any) *Document {
	profile := asMap(m["profile"])

	d := &Document{
		Profile: Profile{
			Mode:           NormalizeMode(asString(profile["mode"])),
			PreferredName:  asString(profile["preferredName"]),
			Style:          asString(profile["style"]),
			Goals:          asStringSlice(profile["goals"]),
			Notes:          asStringSlice(profile["notes"]),
			PinnedMemories: asStringSlice(profile["pinnedMemories"]),
			Meta:           metaFromMap(asMap(profile["memoryMeta"])),
			ModeExtras:     extrasFromMap(asMap(profile["modeExtras"])),
		},
		History:             turnsFromAny(m["history"]),
		Summaries:           summariesFromAny(m["summaries"]),
		UncensoredHistory:   turnsFromAny(m["uncensoredHistory"]),
		UncensoredSummaries: summariesFromAny(m["uncensoredSummaries"]),
	}

	if mm, ok := profile["modeMemory"].(map[string]any); ok {
		d.Profile.ModeMemory = map[Mode]*Bucket{}
		for _, mode := range Modes {
			if raw, ok := mm[string(mode)]; ok {
				d.Profile.ModeMemory[mode] = bucketFromMap(asMap(raw))
			}
		}
	}
	return d
}

func bucketFromMap(m map[string]any) *Bucket {
	return &Bucket{
		Goals:          asStringSlice(m["goals"]),
		Notes:          asStringSlice(m["notes"]),
		PinnedMemories: asStringSlice(m["pinnedMemories"]),
		Meta:           metaFromMap(asMap(m["memoryMeta"])),
	}
}

func metaFromMap(m map[string]any) BucketMeta {
	return BucketMeta{
		Goals:  metaEntriesFromAny(m["goals"]),
		Pinned: metaEntriesFromAny(m["pinnedMemories"]),
	}
}

func metaEntriesFromAny(v any) map[string]MetaEntry {
	out := map[string]MetaEntry{}
	for key, raw := range asMap(v) {
		entry := asMap(raw)
		out[key] = MetaEntry{
			Score:     clamp01(asFloat(entry["score"])),
			UpdatedAt: asString(entry["updatedAt"]),
		}
	}
	return out
}

func extrasFromMap(m map[string]any) ModeExtras {
	return ModeExtras{
		UncensoredInstructions: asStringSlice(m["uncensoredInstructions"]),
		UncensoredMemories:     asStringSlice(m["uncensoredMemories"]),
	}
}

func turnsFromAny(v any) []Turn {
	items, ok := v.([]any)
	if !ok {
		return []Turn{}
	}
	out := make([]Turn, 0, len(items))
	for _, raw := range items {
		m := asMap(raw)
		out = append(out, Turn{
			At:        asString(m["at"]),
			User:      asString(m["user"]),
			Assistant: asString(m["assistant"]),
		})
	}
	return out
}

func summariesFromAny(v any) []Summary {
	items, ok := v.([]any)
	if !ok {
		return []Summary{}
	}
	out := make([]Summary, 0, len(items))
	for _, raw := range items {
		m := asMap(raw)
		out = append(out, Summary{
			At:      asString(m["at"]),
			Reason:  asString(m["reason"]),
			Count:   int(asFloat(m["count"])),
			Tags:    asStringSlice(m["tags"]),
			Summary: asString(m["summary"]),
		})
	}
	return out
}

func asMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	}
	return 0
}

func asStringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
