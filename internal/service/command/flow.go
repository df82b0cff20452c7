// internal/service/command/flow.go
package command

import (
	"fmt"
	"regexp"
	"strings"

	"backoffice-service/internal/domain/conversation"
)

var (
	emailPattern     = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	skipEmailPattern = regexp.MustCompile(`^(?:skip|no email|none)$`)
	skipPhonePattern = regexp.MustCompile(`^(?:skip|no phone|none)$`)
)

// FlowStateMachine advances an active dialogue by one turn. Only the
// data-collection states are driven here; the three confirmation states are
// resolved exclusively by the confirm endpoint, which interprets an explicit
// boolean rather than free text.
type FlowStateMachine struct{}

func NewFlowStateMachine() *FlowStateMachine {
	return &FlowStateMachine{}
}

func (f *FlowStateMachine) Step(text string, ctx *conversation.Conversation) *conversation.Plan {
	trimmed := strings.TrimSpace(text)
	lowered := strings.ToLower(trimmed)

	switch ctx.FlowState {
	case conversation.FlowCreateAskEmail:
		return f.stepCreateAskEmail(trimmed, lowered, ctx)
	case conversation.FlowCreateAskPhone:
		return f.stepCreateAskPhone(trimmed, lowered, ctx)
	case conversation.FlowEditSelectField:
		return f.stepEditSelectField(lowered, ctx)
	case conversation.FlowEditEnterNewValue:
		return f.stepEditEnterNewValue(trimmed, ctx)
	default:
		// Defensive: a conversation in a confirmation state (or a corrupted
		// one) cannot be advanced by free text. The engine deletes the
		// conversation when it sees this plan.
		return &conversation.Plan{
			Intent:   conversation.IntentUnknown,
			Response: "Sorry, I lost track of where we were. Let's start over — what would you like to do?",
		}
	}
}

func (f *FlowStateMachine) stepCreateAskEmail(trimmed, lowered string, ctx *conversation.Conversation) *conversation.Plan {
	data := ctx.CustomerData

	switch {
	case skipEmailPattern.MatchString(lowered):
		// Email stays nil: explicitly skipped.
		return &conversation.Plan{
			Intent:       ctx.Intent,
			Response:     fmt.Sprintf("No email recorded. What is %s's phone number? (type \"skip\" if they don't have one)", data.Name),
			FlowState:    conversation.FlowCreateAskPhone,
			CustomerData: data,
		}
	case emailPattern.MatchString(trimmed):
		data.Email = &trimmed
		return &conversation.Plan{
			Intent:       ctx.Intent,
			Response:     fmt.Sprintf("Got it. What is %s's phone number? (type \"skip\" if they don't have one)", data.Name),
			FlowState:    conversation.FlowCreateAskPhone,
			CustomerData: data,
		}
	default:
		return &conversation.Plan{
			Intent:       ctx.Intent,
			Response:     "That doesn't look like a valid email address. Enter something like name@example.com, or type \"skip\".",
			FlowState:    conversation.FlowCreateAskEmail,
			CustomerData: data,
		}
	}
}

func (f *FlowStateMachine) stepCreateAskPhone(trimmed, lowered string, ctx *conversation.Conversation) *conversation.Plan {
	data := ctx.CustomerData

	// No phone format validation: anything that isn't a skip is stored
	// verbatim.
	if !skipPhonePattern.MatchString(lowered) {
		data.Phone = &trimmed
	}

	return &conversation.Plan{
		Intent: ctx.Intent,
		Response: fmt.Sprintf("Please confirm the new customer:\nName: %s\nEmail: %s\nPhone: %s",
			data.Name, valueOrNone(data.Email), valueOrNone(data.Phone)),
		FlowState:         conversation.FlowCreateConfirmDetails,
		NeedsConfirmation: true,
		CustomerData:      data,
	}
}

func (f *FlowStateMachine) stepEditSelectField(lowered string, ctx *conversation.Conversation) *conversation.Plan {
	data := ctx.CustomerData

	switch lowered {
	case "name", "email", "phone":
		current := data.Field(lowered)
		if current == "" {
			current = "not set"
		}
		return &conversation.Plan{
			Intent:       ctx.Intent,
			Response:     fmt.Sprintf("What should the new %s for %s be? (currently: %s)", lowered, data.Name, current),
			FlowState:    conversation.FlowEditEnterNewValue,
			CustomerData: data,
			FieldToEdit:  lowered,
		}
	default:
		return &conversation.Plan{
			Intent:       ctx.Intent,
			Response:     "Please reply with one of: name, email or phone.",
			FlowState:    conversation.FlowEditSelectField,
			CustomerData: data,
		}
	}
}

func (f *FlowStateMachine) stepEditEnterNewValue(trimmed string, ctx *conversation.Conversation) *conversation.Plan {
	data := ctx.CustomerData
	displayName := data.Name
	oldValue := data.Field(ctx.FieldToEdit)
	data.SetField(ctx.FieldToEdit, trimmed)

	return &conversation.Plan{
		Intent: ctx.Intent,
		Response: fmt.Sprintf("Change the %s of %s from %q to %q?",
			ctx.FieldToEdit, displayName, oldValue, trimmed),
		FlowState:         conversation.FlowEditConfirmChange,
		NeedsConfirmation: true,
		CustomerData:      data,
		FieldToEdit:       ctx.FieldToEdit,
	}
}

func valueOrNone(v *string) string {
	if v == nil || *v == "" {
		return "(none)"
	}
	return *v
}
