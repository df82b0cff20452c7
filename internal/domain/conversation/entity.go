// internal/domain/conversation/entity.go
package conversation

import "time"

// FlowState is the position of a dialogue within its finite state machine.
// The set is closed: the flow step function dispatches on these values and
// treats anything else as a defective conversation.
type FlowState string

const (
	FlowCreateStart          FlowState = "create_start"
	FlowCreateAskEmail       FlowState = "create_ask_email"
	FlowCreateAskPhone       FlowState = "create_ask_phone"
	FlowCreateConfirmDetails FlowState = "create_confirm_details"

	FlowEditSelectCustomer FlowState = "edit_select_customer"
	FlowEditSelectField    FlowState = "edit_select_field"
	FlowEditEnterNewValue  FlowState = "edit_enter_new_value"
	FlowEditConfirmChange  FlowState = "edit_confirm_change"

	FlowDeleteSelectCustomer FlowState = "delete_select_customer"
	FlowDeleteConfirm        FlowState = "delete_confirm"
)

// IsEditFlow reports whether the state belongs to the edit dialogue. The
// continuation heuristic treats any message inside an edit flow as a
// continuation regardless of its shape.
func (s FlowState) IsEditFlow() bool {
	return s == FlowEditSelectCustomer || s == FlowEditSelectField ||
		s == FlowEditEnterNewValue || s == FlowEditConfirmChange
}

// Intent is the classified purpose of an operator message.
type Intent string

const (
	IntentCreateCustomer Intent = "create_customer"
	IntentEditCustomer   Intent = "edit_customer"
	IntentDeleteCustomer Intent = "delete_customer"
	IntentListCustomers  Intent = "list_customers"
	IntentViewCustomer   Intent = "view_customer"
	IntentUnknown        Intent = "unknown"
)

// CustomerData is the partial customer record a dialogue accumulates turn by
// turn. Email and phone are pointers so "explicitly skipped" stays
// distinguishable from "not collected yet" in the confirmation summary.
type CustomerData struct {
	ID    string  `json:"id,omitempty"`
	Name  string  `json:"name,omitempty"`
	Email *string `json:"email"`
	Phone *string `json:"phone"`
}

// Field returns the named field's display value, or "" when unset.
func (d CustomerData) Field(name string) string {
	switch name {
	case "name":
		return d.Name
	case "email":
		if d.Email != nil {
			return *d.Email
		}
	case "phone":
		if d.Phone != nil {
			return *d.Phone
		}
	}
	return ""
}

// SetField assigns the named field. Unknown names are ignored; the flow
// validates field names before calling this.
func (d *CustomerData) SetField(name, value string) {
	switch name {
	case "name":
		d.Name = value
	case "email":
		d.Email = &value
	case "phone":
		d.Phone = &value
	}
}

// Conversation is the server-side session behind one multi-turn dialogue.
// CreatedAt drives expiry; the id is purely a lookup key.
type Conversation struct {
	ID                   string        `json:"id"`
	FlowState            FlowState     `json:"flow_state"`
	Intent               Intent        `json:"intent"`
	ActionType           Intent        `json:"action_type"`
	CustomerData         CustomerData  `json:"customer_data"`
	OriginalCustomerData *CustomerData `json:"original_customer_data,omitempty"`
	FieldToEdit          string        `json:"field_to_edit,omitempty"`
	NeedsConfirmation    bool          `json:"needs_confirmation"`
	CreatedAt            time.Time     `json:"created_at"`
	LastTouchedAt        time.Time     `json:"last_touched_at"`
}

// Plan is what the intent parser or the flow step function produces for one
// message: the classified intent, the reply to show, and where the dialogue
// goes next.
type Plan struct {
	Intent            Intent
	Response          string
	FlowState         FlowState
	NeedsConfirmation bool
	CustomerData      CustomerData
	FieldToEdit       string
	// Identifier is the raw "<ident>" capture for edit/delete/view commands;
	// the engine resolves it against the customer repository.
	Identifier string
}
