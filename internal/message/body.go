package message

import (
	"strconv"
	"strings"

	"github.com/stafflink/wabridge/internal/whatsapp"
)

const locationMarker = "📍"

// ExtractBody computes the normalized display body for a provider message.
// A media caption, when present, overrides the type-specific extraction.
// Empty means no displayable body (stored as NULL).
func ExtractBody(msg whatsapp.Message) string {
	if caption := strings.TrimSpace(msg.Caption()); caption != "" {
		return caption
	}
	switch msg.Type {
	case "text":
		if msg.Text != nil {
			return msg.Text.Body
		}
	case "interactive":
		if msg.Interactive != nil {
			if reply := msg.Interactive.ButtonReply; reply != nil {
				return reply.Title
			}
			if reply := msg.Interactive.ListReply; reply != nil {
				return reply.Title
			}
		}
	case "button":
		if msg.Button != nil {
			return msg.Button.Text
		}
	case "reaction":
		if msg.Reaction != nil {
			return msg.Reaction.Emoji
		}
	case "location":
		if msg.Location != nil {
			return formatLocation(*msg.Location)
		}
	}
	return ""
}

func formatLocation(loc whatsapp.Location) string {
	var parts []string
	if name := strings.TrimSpace(loc.Name); name != "" {
		parts = append(parts, name)
	}
	if addr := strings.TrimSpace(loc.Address); addr != "" {
		parts = append(parts, addr)
	}
	if len(parts) == 0 {
		parts = append(parts,
			strconv.FormatFloat(loc.Latitude, 'f', -1, 64)+", "+
				strconv.FormatFloat(loc.Longitude, 'f', -1, 64))
	}
	return locationMarker + " " + strings.Join(parts, ", ")
}
