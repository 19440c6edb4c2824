// internal/llm/prompts.go
package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// 提示词模板：保持紧凑，上下文直接以JSON内嵌

func buildEventReactionPrompt(ec EventContext) string {
	eventJSON, _ := json.Marshal(map[string]any{
		"type":                   ec.Type,
		"location_id":            ec.LocationID,
		"payload":                ec.Payload,
		"world_default_language": ec.DefaultLanguage,
		"force_default_language": ec.ForceDefaultLanguage,
	})
	participantsJSON, _ := json.Marshal(ec.Participants)
	return fmt.Sprintf(
		"Event: %s\nParticipants: %s\nFor each participant, give reaction text and a short shared dialogue.",
		eventJSON, participantsJSON)
}

func buildIncidentPrompt(eventType string, participants []ParticipantSketch) string {
	participantsJSON, _ := json.Marshal(participants)
	return fmt.Sprintf(
		"Event type: %s\nParticipants: %s\nInvent a small incident. Respond as JSON: {\"title\": ..., \"description\": ...}.",
		eventType, participantsJSON)
}

func buildMemorySummaryPrompt(summaries []string, maxItems int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Condense the following %d memories into at most %d sentences:\n", len(summaries), maxItems)
	for i, s := range summaries {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, s)
	}
	return sb.String()
}
