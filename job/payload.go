package job

import (
	"maps"
	"strings"

	"github.com/xraph/herald"
)

// Severity classifies a delivery message. It drives presentation only.
type Severity string

// Known severities.
const (
	SeverityInfo     Severity = "info"
	SeveritySuccess  Severity = "success"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// ParseSeverity normalises s. Empty input maps to SeverityInfo.
func ParseSeverity(s string) (Severity, error) {
	switch sev := Severity(strings.ToLower(strings.TrimSpace(s))); sev {
	case "":
		return SeverityInfo, nil
	case SeverityInfo, SeveritySuccess, SeverityWarning, SeverityError, SeverityCritical:
		return sev, nil
	}
	return "", &herald.ValidationError{Field: "severity", Reason: "unknown severity " + `"` + s + `"`}
}

// DeliveryPayload is the body of a notification job.
type DeliveryPayload struct {
	Source    string   `json:"source"`
	Message   string   `json:"message"`
	Severity  Severity `json:"severity,omitempty"`
	Title     string   `json:"title,omitempty"`
	ChannelID string   `json:"channel_id,omitempty"`
}

// TriggerPayload is the body of a remote automation job.
type TriggerPayload struct {
	AutomationID string         `json:"automation_id"`
	RequestedBy  string         `json:"requested_by,omitempty"`
	Variables    map[string]any `json:"variables,omitempty"`
}

// Payload is a tagged union over the job flavors. Exactly one field is set.
type Payload struct {
	Delivery *DeliveryPayload `json:"delivery,omitempty"`
	Trigger  *TriggerPayload  `json:"trigger,omitempty"`
}

// Kind returns the flavor selected by the payload, or "" when the union is
// empty or ambiguous.
func (p Payload) Kind() Kind {
	switch {
	case p.Delivery != nil && p.Trigger == nil:
		return KindDelivery
	case p.Trigger != nil && p.Delivery == nil:
		return KindTrigger
	}
	return ""
}

// Validate checks required fields and normalises the severity.
func (p *Payload) Validate() error {
	switch p.Kind() {
	case KindDelivery:
		d := p.Delivery
		if strings.TrimSpace(d.Source) == "" {
			return &herald.ValidationError{Field: "source", Reason: "required"}
		}
		if strings.TrimSpace(d.Message) == "" {
			return &herald.ValidationError{Field: "message", Reason: "required"}
		}
		sev, err := ParseSeverity(string(d.Severity))
		if err != nil {
			return err
		}
		d.Severity = sev
		return nil
	case KindTrigger:
		if strings.TrimSpace(p.Trigger.AutomationID) == "" {
			return &herald.ValidationError{Field: "automation_id", Reason: "required"}
		}
		return nil
	}
	return &herald.ValidationError{Field: "payload", Reason: "exactly one of delivery or trigger must be set"}
}

// Clone returns a deep copy.
func (p Payload) Clone() Payload {
	var cp Payload
	if p.Delivery != nil {
		d := *p.Delivery
		cp.Delivery = &d
	}
	if p.Trigger != nil {
		t := *p.Trigger
		t.Variables = maps.Clone(p.Trigger.Variables)
		cp.Trigger = &t
	}
	return cp
}
