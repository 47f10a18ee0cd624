package ollama

import "strings"

// VisionClassifier decides whether a model accepts image inputs. The
// heuristic is inherently fuzzy, so it lives behind this interface rather
// than being part of the client contract.
type VisionClassifier interface {
	SupportsVision(m ModelInfo) bool
}

// KeywordClassifier is the default classifier. It matches the model's
// family and name against known vision-capable families, then looks for
// capability indicators in the capabilities map, the parameters map and
// the free-text description.
type KeywordClassifier struct {
	Families   []string
	Indicators []string
}

// DefaultClassifier returns a classifier with the stock keyword lists.
func DefaultClassifier() *KeywordClassifier {
	return &KeywordClassifier{
		Families: []string{
			"llava", "bakllava", "moondream", "llama", "mixtral", "yi", "qwen",
		},
		Indicators: []string{
			"vision", "multimodal", "image", "visual", "img", "images",
		},
	}
}

// SupportsVision reports whether the model looks vision-capable.
func (k *KeywordClassifier) SupportsVision(m ModelInfo) bool {
	family := strings.ToLower(m.Family)
	name := strings.ToLower(m.Name)

	if strings.Contains(name, ":vision") || strings.Contains(name, "-vision") {
		return true
	}
	for _, f := range k.Families {
		if strings.Contains(family, f) || strings.Contains(name, f) {
			return true
		}
	}

	if hasIndicator(m.Capabilities, k.Indicators) || hasIndicator(m.Parameters, k.Indicators) {
		return true
	}

	desc := strings.ToLower(m.Description)
	for _, ind := range k.Indicators {
		if strings.Contains(desc, ind) {
			return true
		}
	}
	return false
}

// hasIndicator checks a metadata map for a vision hint. A boolean value
// counts only when true; string and map values count by presence.
func hasIndicator(meta map[string]any, indicators []string) bool {
	for _, ind := range indicators {
		value, ok := meta[ind]
		if !ok {
			continue
		}
		switch v := value.(type) {
		case bool:
			if v {
				return true
			}
		case string, map[string]any:
			return true
		}
	}
	return false
}
