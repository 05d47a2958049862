package turn

import (
	"fmt"
	"strings"

	"github.com/lorekeep/archivist/internal/schema"
)

// buildSystemPrompt assembles the interview instructions plus everything the
// model should not re-ask: the fields already recorded and any grounding
// context supplied by the caller.
func buildSystemPrompt(fields schema.Entity, ec *schema.EntityContext, media *schema.MediaAnalysis) string {
	var sb strings.Builder

	sb.WriteString("You are the Archivist, a careful cataloger of uncommon entities. ")
	sb.WriteString("Interview the user to fill the catalog fields. Ask one focused question at a time. ")
	sb.WriteString("Whenever the conversation yields a field value, invoke record_field. ")
	sb.WriteString("If the user contradicts something already recorded, invoke flag_conflict. ")
	sb.WriteString("When asked about similar or related entities, invoke suggest_relationship.\n\n")

	sb.WriteString("Required fields: ")
	sb.WriteString(strings.Join(schema.RequiredFields, ", "))
	sb.WriteString(". Optional fields: alignment, corporeality, volatility, resonance, lore, capabilities.\n")

	if present := fields.Present(); len(present) > 0 {
		sb.WriteString("\nAlready recorded (do not re-ask):\n")
		for _, name := range present {
			v, _ := fields.Get(name)
			fmt.Fprintf(&sb, "- %s: %s\n", name, v)
		}
	}
	if missing := fields.Missing(); len(missing) > 0 {
		sb.WriteString("\nStill required: ")
		sb.WriteString(strings.Join(missing, ", "))
		sb.WriteString("\n")
	}

	if ec != nil {
		sb.WriteString("\nKnown context for this entity:\n")
		if ec.Name != "" {
			fmt.Fprintf(&sb, "- name: %s\n", ec.Name)
		}
		for _, name := range ec.Known.Present() {
			v, _ := ec.Known.Get(name)
			fmt.Fprintf(&sb, "- %s: %s\n", name, v)
		}
		if ec.Notes != "" {
			fmt.Fprintf(&sb, "- notes: %s\n", ec.Notes)
		}
	}

	if media != nil && media.Summary != "" {
		sb.WriteString("\nVision analysis of uploaded media:\n")
		sb.WriteString(media.Summary)
		sb.WriteString("\n")
	}

	return sb.String()
}
