package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// VoiceRequest is the body of POST /api/voice.
type VoiceRequest struct {
	Text string `json:"text"`
}

// Rule describes one firewall rule as the server reports it. The client never
// interprets it.
type Rule struct {
	Type *string `json:"type,omitempty" yaml:"type,omitempty"`
	IP   *string `json:"ip,omitempty" yaml:"ip,omitempty"`
	Port *string `json:"port,omitempty" yaml:"port,omitempty"`
	// Raw is set instead of the fields above when the server answered with a
	// plain text listing.
	Raw string `json:"raw,omitempty" yaml:"raw,omitempty"`
}

// String renders the rule on one line for console output.
func (r Rule) String() string {
	if r.Raw != "" {
		return r.Raw
	}

	parts := make([]string, 0, 3)
	for _, p := range []struct {
		label string
		value *string
	}{{"type", r.Type}, {"ip", r.IP}, {"port", r.Port}} {
		if p.value != nil {
			parts = append(parts, p.label+"="+*p.value)
		}
	}
	if len(parts) == 0 {
		return "(empty rule)"
	}
	return strings.Join(parts, " ")
}

// RuleList accepts either a JSON array of rules or a newline separated string.
type RuleList []Rule

func (l *RuleList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var listing string
		if err := json.Unmarshal(data, &listing); err != nil {
			return err
		}
		rules := make(RuleList, 0)
		for _, line := range strings.Split(listing, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				rules = append(rules, Rule{Raw: line})
			}
		}
		*l = rules
		return nil
	}

	var rules []Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return err
	}
	*l = rules
	return nil
}

// VoiceResponse is the body returned by /api/voice and /api/rules. Every field
// is optional because its shape depends on the command.
type VoiceResponse struct {
	Status  *string  `json:"status,omitempty"`
	Result  *string  `json:"result,omitempty"`
	Rules   RuleList `json:"rules,omitempty"`
	Deleted RuleList `json:"deleted,omitempty"`
	Error   *string  `json:"error,omitempty"`
}

func (r *VoiceResponse) empty() bool {
	return r.Status == nil && r.Result == nil && r.Error == nil && r.Rules == nil && r.Deleted == nil
}

// UnmarshalJSON also unwraps the {"ok": {...}} envelope some servers use.
// The envelope is only consulted when the top level carries none of the
// known fields.
func (r *VoiceResponse) UnmarshalJSON(data []byte) error {
	type plain VoiceResponse
	var wire struct {
		plain
		OK json.RawMessage `json:"ok"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*r = VoiceResponse(wire.plain)
	if !r.empty() || len(wire.OK) == 0 {
		return nil
	}

	var inner plain
	if err := json.Unmarshal(wire.OK, &inner); err == nil {
		*r = VoiceResponse(inner)
	}
	return nil
}

// Sender identifies who produced a transcript entry.
type Sender int

const (
	SenderUser Sender = iota
	SenderServer
	SenderError
)

func (s Sender) String() string {
	switch s {
	case SenderUser:
		return "You"
	case SenderServer:
		return "Server"
	case SenderError:
		return "Error"
	default:
		return "Unknown"
	}
}

func (s Sender) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Sender) UnmarshalText(text []byte) error {
	switch string(text) {
	case "You":
		*s = SenderUser
	case "Server":
		*s = SenderServer
	case "Error":
		*s = SenderError
	default:
		return fmt.Errorf("unknown sender %q", string(text))
	}
	return nil
}

// TranscriptEntry is one line of a chat session.
type TranscriptEntry struct {
	ID     string    `json:"id" yaml:"id"`
	Sender Sender    `json:"sender" yaml:"sender"`
	Text   string    `json:"text" yaml:"text"`
	At     time.Time `json:"at" yaml:"at"`
}

func (e TranscriptEntry) String() string {
	return e.Sender.String() + ": " + e.Text
}
