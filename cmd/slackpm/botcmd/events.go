package botcmd

import (
	"encoding/json"
	"fmt"
	"strings"
)

type socketEnvelope struct {
	EnvelopeID string          `json:"envelope_id,omitempty"`
	Type       string          `json:"type,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

type eventsAPIPayload struct {
	TeamID         string               `json:"team_id,omitempty"`
	EventID        string               `json:"event_id,omitempty"`
	Event          json.RawMessage      `json:"event,omitempty"`
	Authorizations []eventAuthorization `json:"authorizations,omitempty"`
}

type eventAuthorization struct {
	TeamID string `json:"team_id,omitempty"`
	UserID string `json:"user_id,omitempty"`
}

type slackEvent struct {
	Type     string `json:"type,omitempty"`
	Subtype  string `json:"subtype,omitempty"`
	User     string `json:"user,omitempty"`
	Text     string `json:"text,omitempty"`
	Channel  string `json:"channel,omitempty"`
	TS       string `json:"ts,omitempty"`
	ThreadTS string `json:"thread_ts,omitempty"`
	BotID    string `json:"bot_id,omitempty"`
	Team     string `json:"team,omitempty"`
}

type interactivePayload struct {
	Type string `json:"type,omitempty"`
	User struct {
		ID string `json:"id,omitempty"`
	} `json:"user,omitempty"`
	Actions []interactiveAction `json:"actions,omitempty"`
}

type interactiveAction struct {
	ActionID string `json:"action_id,omitempty"`
	Value    string `json:"value,omitempty"`
}

type botEventKind string

const (
	eventMessage    botEventKind = "message"
	eventAppMention botEventKind = "app_mention"
	eventHomeOpened botEventKind = "app_home_opened"
	eventMarkDone   botEventKind = "mark_done"
)

// botEvent is the normalized form of the Socket Mode envelopes the bot acts
// on. ActionValue is only set for eventMarkDone.
type botEvent struct {
	Kind        botEventKind
	TeamID      string
	ChannelID   string
	MessageTS   string
	ThreadTS    string
	UserID      string
	Text        string
	EventID     string
	ActionValue string
}

// parseSocketEnvelope normalizes one envelope. ok=false means the envelope is
// not something the bot handles (bot echoes, message subtypes, other event
// types); that is not an error.
func parseSocketEnvelope(envelope socketEnvelope, botUserID string) (botEvent, bool, error) {
	switch strings.TrimSpace(envelope.Type) {
	case "events_api":
		return parseEventsAPIEnvelope(envelope, botUserID)
	case "interactive":
		return parseInteractiveEnvelope(envelope)
	default:
		return botEvent{}, false, nil
	}
}

func parseEventsAPIEnvelope(envelope socketEnvelope, botUserID string) (botEvent, bool, error) {
	if len(envelope.Payload) == 0 {
		return botEvent{}, false, nil
	}
	var payload eventsAPIPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		return botEvent{}, false, err
	}
	if len(payload.Event) == 0 {
		return botEvent{}, false, nil
	}
	var event slackEvent
	if err := json.Unmarshal(payload.Event, &event); err != nil {
		return botEvent{}, false, err
	}

	userID := strings.TrimSpace(event.User)
	if userID == "" || userID == strings.TrimSpace(botUserID) {
		return botEvent{}, false, nil
	}
	teamID := strings.TrimSpace(payload.TeamID)
	if teamID == "" {
		teamID = strings.TrimSpace(event.Team)
	}
	if teamID == "" && len(payload.Authorizations) > 0 {
		teamID = strings.TrimSpace(payload.Authorizations[0].TeamID)
	}

	out := botEvent{
		TeamID:    teamID,
		ChannelID: strings.TrimSpace(event.Channel),
		MessageTS: strings.TrimSpace(event.TS),
		ThreadTS:  strings.TrimSpace(event.ThreadTS),
		UserID:    userID,
		Text:      event.Text,
		EventID:   strings.TrimSpace(payload.EventID),
	}

	switch strings.TrimSpace(event.Type) {
	case "message":
		// Only plain user messages: no subtype (edits, joins, bot posts) and
		// a text body to run extraction on.
		if strings.TrimSpace(event.Subtype) != "" || strings.TrimSpace(event.BotID) != "" {
			return botEvent{}, false, nil
		}
		if out.ChannelID == "" || out.MessageTS == "" || strings.TrimSpace(event.Text) == "" {
			return botEvent{}, false, nil
		}
		out.Kind = eventMessage
		return out, true, nil
	case "app_mention":
		if out.ChannelID == "" || out.MessageTS == "" {
			return botEvent{}, false, nil
		}
		out.Kind = eventAppMention
		return out, true, nil
	case "app_home_opened":
		out.Kind = eventHomeOpened
		return out, true, nil
	default:
		return botEvent{}, false, nil
	}
}

func parseInteractiveEnvelope(envelope socketEnvelope) (botEvent, bool, error) {
	if len(envelope.Payload) == 0 {
		return botEvent{}, false, nil
	}
	var payload interactivePayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		return botEvent{}, false, err
	}
	if strings.TrimSpace(payload.Type) != "block_actions" {
		return botEvent{}, false, nil
	}
	userID := strings.TrimSpace(payload.User.ID)
	if userID == "" {
		return botEvent{}, false, nil
	}
	for _, action := range payload.Actions {
		if strings.TrimSpace(action.ActionID) != markDoneActionID {
			continue
		}
		value := strings.TrimSpace(action.Value)
		if value == "" {
			return botEvent{}, false, fmt.Errorf("mark_done action value is empty")
		}
		return botEvent{
			Kind:        eventMarkDone,
			UserID:      userID,
			ActionValue: value,
		}, true, nil
	}
	return botEvent{}, false, nil
}

// parseMarkDoneValue splits the "channel:ts" button value back into the
// record key. The ts part may itself contain dots but never a colon.
func parseMarkDoneValue(value string) (string, string, error) {
	parts := strings.SplitN(strings.TrimSpace(value), ":", 2)
	if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
		return "", "", fmt.Errorf("mark_done value is invalid: %q", value)
	}
	return parts[0], parts[1], nil
}
