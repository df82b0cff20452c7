// internal/service/command/intent.go
package command

import (
	"fmt"
	"regexp"
	"strings"

	"backoffice-service/internal/domain/conversation"
)

// intentRule pairs a pattern with the Plan it produces. Rules are evaluated
// in declaration order, most specific first, first match wins; the ordering
// is pinned by tests.
type intentRule struct {
	name  string
	re    *regexp.Regexp
	build func(m []string) *conversation.Plan
}

var bareCustomerIDPattern = regexp.MustCompile(`^c\d+$`)

const unknownCommandReply = "I didn't understand that. Try one of:\n" +
	"- create customer <name>\n" +
	"- edit customer <id or name>\n" +
	"- delete customer <id or name>\n" +
	"- view customer <id or name>\n" +
	"- list customers"

// Ordered intent rules:
//  1. delete/remove customer <ident>
//  2. edit/update/modify/change customer <ident>
//  3. create/add/make [a] customer <name>, or [new] customer <name>
//  4. list/show/view customers
//  5. view/show/get customer <ident>
var intentRules = []intentRule{
	{
		name: "delete_customer",
		re:   regexp.MustCompile(`(?i)^(?:delete|remove)\s+customer\s+(.+)$`),
		build: func(m []string) *conversation.Plan {
			ident := strings.TrimSpace(m[1])
			return &conversation.Plan{
				Intent:            conversation.IntentDeleteCustomer,
				Response:          fmt.Sprintf("Are you sure you want to delete customer %q? This will also delete all of their orders.", ident),
				FlowState:         conversation.FlowDeleteConfirm,
				NeedsConfirmation: true,
				Identifier:        ident,
			}
		},
	},
	{
		name: "edit_customer",
		re:   regexp.MustCompile(`(?i)^(?:edit|update|modify|change)\s+customer\s+(.+)$`),
		build: func(m []string) *conversation.Plan {
			ident := strings.TrimSpace(m[1])
			return &conversation.Plan{
				Intent:     conversation.IntentEditCustomer,
				Response:   fmt.Sprintf("Which field of customer %q would you like to change: name, email or phone?", ident),
				FlowState:  conversation.FlowEditSelectField,
				Identifier: ident,
			}
		},
	},
	{
		name: "create_customer",
		re:   regexp.MustCompile(`(?i)^(?:(?:create|add|make)\s+(?:a\s+)?|(?:new\s+)?)customer\s+(.+)$`),
		build: func(m []string) *conversation.Plan {
			name := strings.TrimSpace(m[1])
			if bareCustomerIDPattern.MatchString(strings.ToLower(name)) {
				// Almost certainly a misdirected edit/delete: nobody names a
				// customer "c12".
				return &conversation.Plan{
					Intent: conversation.IntentUnknown,
					Response: fmt.Sprintf("%q looks like a customer id, not a name. "+
						"Did you mean \"edit customer %s\" or \"delete customer %s\"?", name, name, name),
				}
			}
			return &conversation.Plan{
				Intent:       conversation.IntentCreateCustomer,
				Response:     fmt.Sprintf("Creating customer %q. What is their email address? (type \"skip\" if they don't have one)", name),
				FlowState:    conversation.FlowCreateAskEmail,
				CustomerData: conversation.CustomerData{Name: name},
			}
		},
	},
	{
		name: "list_customers",
		re:   regexp.MustCompile(`(?i)^(?:list|show|view)\s+customers$`),
		build: func(m []string) *conversation.Plan {
			return &conversation.Plan{Intent: conversation.IntentListCustomers}
		},
	},
	{
		name: "view_customer",
		re:   regexp.MustCompile(`(?i)^(?:view|show|get)\s+customer\s+(.+)$`),
		build: func(m []string) *conversation.Plan {
			return &conversation.Plan{
				Intent:     conversation.IntentViewCustomer,
				Identifier: strings.TrimSpace(m[1]),
			}
		},
	},
}

// IntentParser classifies free text into a Plan. Classification never runs
// while a dialogue is active: with a non-nil context the message belongs to
// the flow state machine.
type IntentParser struct {
	flow *FlowStateMachine
}

func NewIntentParser() *IntentParser {
	return &IntentParser{flow: NewFlowStateMachine()}
}

func (p *IntentParser) Parse(text string, ctx *conversation.Conversation) *conversation.Plan {
	if ctx != nil {
		return p.flow.Step(text, ctx)
	}

	trimmed := strings.TrimSpace(text)
	for _, rule := range intentRules {
		if m := rule.re.FindStringSubmatch(trimmed); m != nil {
			return rule.build(m)
		}
	}

	return &conversation.Plan{
		Intent:   conversation.IntentUnknown,
		Response: unknownCommandReply,
	}
}
