package agent

import (
	"strings"
	"time"
)

// Event is the canonical in-process form of one streamed response chunk.
// Role and Author are separate axes: role is the semantic speaker class,
// author the concrete originator identity.
type Event struct {
	ID            string                 `json:"id,omitempty"`
	Role          string                 `json:"role"`
	Author        string                 `json:"author"`
	Content       string                 `json:"content"`
	FinishReason  string                 `json:"finishReason,omitempty"`
	UsageMetadata map[string]interface{} `json:"usageMetadata,omitempty"`
	InvocationID  string                 `json:"invocationId,omitempty"`
	Timestamp     float64                `json:"timestamp"`
}

// UnixTimestamp floors the event timestamp to integer epoch seconds, the
// precision message rows are stored at.
func (e Event) UnixTimestamp() int64 {
	return int64(e.Timestamp)
}

// NormalizeEvent collapses the heterogeneous upstream payload shapes into an
// Event. It never fails: missing content yields an empty string so the turn
// is still accounted for.
func NormalizeEvent(payload map[string]interface{}) Event {
	ev := Event{
		Content:      ExtractContent(payload),
		Role:         normalizeRole(payloadRole(payload)),
		Author:       normalizeAuthor(stringField(payload, "author")),
		FinishReason: stringAlias(payload, "finishReason", "finish_reason"),
		InvocationID: stringAlias(payload, "invocationId", "invocation_id"),
		ID:           stringField(payload, "id"),
	}

	if meta := mapAlias(payload, "usageMetadata", "usage_metadata"); meta != nil {
		ev.UsageMetadata = meta
	}

	if ts, ok := payload["timestamp"].(float64); ok {
		ev.Timestamp = ts
	} else {
		ev.Timestamp = float64(time.Now().Unix())
	}

	return ev
}

// ExtractContent tries each extraction strategy in order until one yields a
// non-empty string. Feeding an already-normalized payload back through hits
// the first strategy, so normalization is idempotent.
func ExtractContent(payload map[string]interface{}) string {
	// Strategy 1: direct string content field
	if s, ok := payload["content"].(string); ok {
		return s
	}

	content, _ := payload["content"].(map[string]interface{})

	// Strategy 2: content.parts array, concatenating non-blank part texts.
	// A parts array whose entries are all blank yields nothing here and
	// defers to the later strategies.
	if content != nil {
		if parts, ok := content["parts"].([]interface{}); ok {
			var texts []string
			for _, p := range parts {
				part, ok := p.(map[string]interface{})
				if !ok {
					continue
				}
				text, _ := part["text"].(string)
				if strings.TrimSpace(text) == "" {
					continue
				}
				texts = append(texts, text)
			}
			if len(texts) > 0 {
				return strings.Join(texts, " ")
			}
		}
	}

	// Strategy 3: content.text
	if content != nil {
		if s, ok := content["text"].(string); ok && s != "" {
			return s
		}
	}

	// Strategy 4: top-level message field
	if s, ok := payload["message"].(string); ok && s != "" {
		return s
	}

	// Strategy 5: top-level text field
	if s, ok := payload["text"].(string); ok && s != "" {
		return s
	}

	return ""
}

// payloadRole finds the role: top level first, then inside a structured
// content object (the platform's terminal event shape).
func payloadRole(payload map[string]interface{}) string {
	if s, ok := payload["role"].(string); ok {
		return s
	}
	if content, ok := payload["content"].(map[string]interface{}); ok {
		if s, ok := content["role"].(string); ok {
			return s
		}
	}
	return ""
}

func normalizeRole(role string) string {
	switch role {
	case "model":
		return "model"
	case "system":
		return "system"
	default:
		return "user"
	}
}

func normalizeAuthor(author string) string {
	switch author {
	case "orchestrator_agent":
		return "orchestrator_agent"
	case "system":
		return "system"
	default:
		return "user"
	}
}

func stringField(payload map[string]interface{}, key string) string {
	s, _ := payload[key].(string)
	return s
}

// stringAlias returns the first non-null of the camelCase and snake_case
// spellings; upstream payload shape is inconsistent across call paths.
func stringAlias(payload map[string]interface{}, camel, snake string) string {
	if v, ok := payload[camel]; ok && v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	if v, ok := payload[snake]; ok && v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func mapAlias(payload map[string]interface{}, camel, snake string) map[string]interface{} {
	if m, ok := payload[camel].(map[string]interface{}); ok {
		return m
	}
	if m, ok := payload[snake].(map[string]interface{}); ok {
		return m
	}
	return nil
}
