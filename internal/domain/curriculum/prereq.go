package curriculum

import "fmt"

// PrerequisiteResolver maps a weak topic to the prerequisite topics that
// remedial material should cover. The content generator is responsible for
// producing the actual material; the engine only needs names.
type PrerequisiteResolver interface {
	// Prerequisites returns prerequisite topic names for the given topic,
	// in study order. It must be deterministic for unchanged input.
	Prerequisites(topic string) []string
}

// StaticPrerequisites is a map-backed resolver seeded from course metadata.
// Topics without an entry fall back to a single synthesized foundations
// item so remediation is never empty.
type StaticPrerequisites struct {
	byTopic map[string][]string
}

// NewStaticPrerequisites creates a resolver from the given mapping. The map
// is copied; a nil map is valid and yields only fallbacks.
func NewStaticPrerequisites(byTopic map[string][]string) *StaticPrerequisites {
	cp := make(map[string][]string, len(byTopic))
	for topic, prereqs := range byTopic {
		cp[topic] = append([]string(nil), prereqs...)
	}
	return &StaticPrerequisites{byTopic: cp}
}

// Prerequisites implements PrerequisiteResolver.
func (r *StaticPrerequisites) Prerequisites(topic string) []string {
	if prereqs, ok := r.byTopic[topic]; ok && len(prereqs) > 0 {
		return append([]string(nil), prereqs...)
	}
	return []string{fmt.Sprintf("Foundations of %s", topic)}
}
