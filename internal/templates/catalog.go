// Package templates holds the closed catalog of notification templates.
// Rendering is pure: a template name plus its named arguments maps to a
// vendor-neutral payload, with no side effects.
package templates

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pairbond/go-push-service/pkg/push"
)

// ErrUnknownTemplate is returned when a caller references a template name
// outside the catalog.
var ErrUnknownTemplate = errors.New("unknown notification template")

// ErrBadTemplateArgs is returned when a template's arguments are missing,
// empty, or carry unknown fields.
var ErrBadTemplateArgs = errors.New("bad template arguments")

// Catalog template names. The set is closed: the surrounding app enqueues
// notifications by these names and clients route on the data "type" key.
const (
	PartnerCheckinReminder = "partner_checkin_reminder"
	PartnerActivity        = "partner_activity"
	MilestoneAchieved      = "milestone_achieved"
	DailyPrompt            = "daily_prompt"
	GiftReceived           = "gift_received"
	AnniversaryReminder    = "anniversary_reminder"
	GoalCompleted          = "goal_completed"
)

// Message is one fully-validated template instance.
type Message interface {
	Payload() push.Payload
}

// CheckinReminderArgs nudges a user to check in with their partner.
type CheckinReminderArgs struct {
	PartnerName string `json:"partner_name"`
}

func (a CheckinReminderArgs) Payload() push.Payload {
	return push.Payload{
		Title: "Time to check in 💙",
		Body:  fmt.Sprintf("%s is waiting to hear how your day went.", a.PartnerName),
		Data:  routing(PartnerCheckinReminder),
	}
}

// PartnerActivityArgs tells a user their partner did something in the app.
type PartnerActivityArgs struct {
	PartnerName string `json:"partner_name"`
	Activity    string `json:"activity"`
}

func (a PartnerActivityArgs) Payload() push.Payload {
	return push.Payload{
		Title: fmt.Sprintf("%s was active", a.PartnerName),
		Body:  fmt.Sprintf("%s just %s. Take a look!", a.PartnerName, a.Activity),
		Data:  routing(PartnerActivity),
	}
}

// MilestoneArgs celebrates a relationship milestone.
type MilestoneArgs struct {
	Milestone string `json:"milestone"`
}

func (a MilestoneArgs) Payload() push.Payload {
	one := 1
	return push.Payload{
		Title: "Milestone unlocked 🎉",
		Body:  fmt.Sprintf("You both reached %q. Keep it going!", a.Milestone),
		Data:  routing(MilestoneAchieved),
		Badge: &one,
	}
}

// DailyPromptArgs delivers the day's conversation prompt.
type DailyPromptArgs struct {
	Prompt string `json:"prompt"`
}

func (a DailyPromptArgs) Payload() push.Payload {
	return push.Payload{
		Title: "Today's prompt",
		Body:  a.Prompt,
		Data:  routing(DailyPrompt),
	}
}

// GiftReceivedArgs tells a user their partner sent them a virtual gift.
type GiftReceivedArgs struct {
	PartnerName string `json:"partner_name"`
	GiftName    string `json:"gift_name"`
}

func (a GiftReceivedArgs) Payload() push.Payload {
	one := 1
	return push.Payload{
		Title: "You received a gift 🎁",
		Body:  fmt.Sprintf("%s sent you %s.", a.PartnerName, a.GiftName),
		Data:  routing(GiftReceived),
		Badge: &one,
	}
}

// AnniversaryArgs reminds a user of an upcoming anniversary.
type AnniversaryArgs struct {
	PartnerName string `json:"partner_name"`
	DaysUntil   int    `json:"days_until"`
}

func (a AnniversaryArgs) Payload() push.Payload {
	body := fmt.Sprintf("Your anniversary with %s is in %d days. Plan something special!", a.PartnerName, a.DaysUntil)
	if a.DaysUntil == 1 {
		body = fmt.Sprintf("Your anniversary with %s is tomorrow!", a.PartnerName)
	}
	return push.Payload{
		Title: "Anniversary coming up 💍",
		Body:  body,
		Data:  routing(AnniversaryReminder),
	}
}

// GoalCompletedArgs celebrates a completed shared goal.
type GoalCompletedArgs struct {
	GoalTitle string `json:"goal_title"`
}

func (a GoalCompletedArgs) Payload() push.Payload {
	return push.Payload{
		Title: "Goal completed ✅",
		Body:  fmt.Sprintf("You completed %q together. Time to celebrate!", a.GoalTitle),
		Data:  routing(GoalCompleted),
		Sound: "celebration",
	}
}

// catalog maps a template name to its strict argument decoder. Each decoder
// rejects unknown fields, so positional-arg drift from callers surfaces as a
// validation error instead of an empty notification.
var catalog = map[string]func(json.RawMessage) (Message, error){
	PartnerCheckinReminder: func(raw json.RawMessage) (Message, error) {
		var a CheckinReminderArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		if a.PartnerName == "" {
			return nil, fmt.Errorf("%w: partner_name is required", ErrBadTemplateArgs)
		}
		return a, nil
	},
	PartnerActivity: func(raw json.RawMessage) (Message, error) {
		var a PartnerActivityArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		if a.PartnerName == "" || a.Activity == "" {
			return nil, fmt.Errorf("%w: partner_name and activity are required", ErrBadTemplateArgs)
		}
		return a, nil
	},
	MilestoneAchieved: func(raw json.RawMessage) (Message, error) {
		var a MilestoneArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		if a.Milestone == "" {
			return nil, fmt.Errorf("%w: milestone is required", ErrBadTemplateArgs)
		}
		return a, nil
	},
	DailyPrompt: func(raw json.RawMessage) (Message, error) {
		var a DailyPromptArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		if a.Prompt == "" {
			return nil, fmt.Errorf("%w: prompt is required", ErrBadTemplateArgs)
		}
		return a, nil
	},
	GiftReceived: func(raw json.RawMessage) (Message, error) {
		var a GiftReceivedArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		if a.PartnerName == "" || a.GiftName == "" {
			return nil, fmt.Errorf("%w: partner_name and gift_name are required", ErrBadTemplateArgs)
		}
		return a, nil
	},
	AnniversaryReminder: func(raw json.RawMessage) (Message, error) {
		var a AnniversaryArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		if a.PartnerName == "" {
			return nil, fmt.Errorf("%w: partner_name is required", ErrBadTemplateArgs)
		}
		return a, nil
	},
	GoalCompleted: func(raw json.RawMessage) (Message, error) {
		var a GoalCompletedArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		if a.GoalTitle == "" {
			return nil, fmt.Errorf("%w: goal_title is required", ErrBadTemplateArgs)
		}
		return a, nil
	},
}

// Render maps a template reference to its payload. Unknown names return
// ErrUnknownTemplate; argument problems return ErrBadTemplateArgs.
func Render(ref push.TemplateRef) (push.Payload, error) {
	decode, ok := catalog[ref.Name]
	if !ok {
		return push.Payload{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, ref.Name)
	}
	msg, err := decode(ref.Args)
	if err != nil {
		return push.Payload{}, err
	}
	return msg.Payload(), nil
}

// Resolve converges the two send paths (catalog template vs fully custom
// payload) onto one validated payload.
func Resolve(req push.Request) (push.Payload, error) {
	if err := req.Validate(); err != nil {
		return push.Payload{}, err
	}
	if req.Template != nil {
		return Render(*req.Template)
	}
	if err := req.Payload.Validate(); err != nil {
		return push.Payload{}, err
	}
	return *req.Payload, nil
}

func decodeArgs(raw json.RawMessage, dest any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: args are required", ErrBadTemplateArgs)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return fmt.Errorf("%w: %v", ErrBadTemplateArgs, err)
	}
	return nil
}

func routing(name string) map[string]string {
	return map[string]string{"type": name}
}
