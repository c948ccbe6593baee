package escalation

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// TimeCondition selects which ticket timestamp a rule measures elapsed time
// against.
type TimeCondition string

const (
	TimeUnassigned TimeCondition = "unassigned_time"
	TimeNoResponse TimeCondition = "no_response_time"
	TimeResolution TimeCondition = "resolution_time"
	TimeCustom     TimeCondition = "custom_time"
)

// TimeUnit is the unit of a rule's time threshold.
type TimeUnit string

const (
	UnitMinutes TimeUnit = "minutes"
	UnitHours   TimeUnit = "hours"
	UnitDays    TimeUnit = "days"
)

// Minutes returns the multiplier that normalizes a threshold expressed in
// this unit to minutes. Unknown units normalize as minutes.
func (u TimeUnit) Minutes() int {
	switch u {
	case UnitHours:
		return 60
	case UnitDays:
		return 1440
	default:
		return 1
	}
}

// AssigneeCondition is the tri-state assignment predicate of a rule. A nil
// *AssigneeCondition means no constraint; Unassigned requires the ticket to
// have no assignee; otherwise UserID names the required assignee.
type AssigneeCondition struct {
	Unassigned bool   `json:"unassigned,omitempty" yaml:"unassigned,omitempty"`
	UserID     string `json:"userID,omitempty" yaml:"userID,omitempty"`
}

// RuleConditions holds the static predicates of a rule. Empty slices mean
// "no constraint"; populated predicates are ANDed.
type RuleConditions struct {
	Status     []string   `json:"status,omitempty" yaml:"status,omitempty"`
	Priority   []Priority `json:"priority,omitempty" yaml:"priority,omitempty"`
	Category   []string   `json:"category,omitempty" yaml:"category,omitempty"`
	AssignedTo *AssigneeCondition `json:"assignedTo,omitempty" yaml:"assignedTo,omitempty"`
}

// Empty reports whether the condition set carries no predicate at all. An
// empty set matches every ticket.
func (c RuleConditions) Empty() bool {
	return len(c.Status) == 0 && len(c.Priority) == 0 && len(c.Category) == 0 && c.AssignedTo == nil
}

// Channel identifies a notification delivery channel.
type Channel string

const (
	ChannelInApp   Channel = "inapp"
	ChannelEmail   Channel = "email"
	ChannelWebhook Channel = "webhook"
)

// DefaultChannels is used when a rule does not restrict its channels.
var DefaultChannels = []Channel{ChannelInApp, ChannelEmail}

// RuleActions is the ordered action bundle a firing rule applies. All
// actions are additive; nothing here deletes ticket data.
type RuleActions struct {
	IncreasePriority     bool      `json:"increasePriority,omitempty" yaml:"increasePriority,omitempty"`
	AutoAssign           bool      `json:"autoAssign,omitempty" yaml:"autoAssign,omitempty"`
	AssignTo             string    `json:"assignTo,omitempty" yaml:"assignTo,omitempty"`
	SetStatus            string    `json:"setStatus,omitempty" yaml:"setStatus,omitempty"`
	AddComment           string    `json:"addComment,omitempty" yaml:"addComment,omitempty"`
	NotifySupervisor     bool      `json:"notifySupervisor,omitempty" yaml:"notifySupervisor,omitempty"`
	EscalateToManagement bool      `json:"escalateToManagement,omitempty" yaml:"escalateToManagement,omitempty"`
	EmailRecipients      []string  `json:"emailRecipients,omitempty" yaml:"emailRecipients,omitempty"`
	Channels             []Channel `json:"channels,omitempty" yaml:"channels,omitempty"`
}

// EscalationRule is the administrator-owned configuration entity. The engine
// treats rules as read-only; they are fetched fresh each batch pass.
type EscalationRule struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Active   bool   `json:"active" yaml:"active"`
	Priority int    `json:"priority" yaml:"priority"` // evaluation order, ascending

	Conditions RuleConditions `json:"conditions" yaml:"conditions"`

	TimeCondition TimeCondition `json:"timeCondition" yaml:"timeCondition"`
	TimeThreshold int           `json:"timeThreshold" yaml:"timeThreshold"`
	TimeUnit      TimeUnit      `json:"timeUnit" yaml:"timeUnit"`

	BusinessHoursOnly  bool           `json:"businessHoursOnly" yaml:"businessHoursOnly"`
	BusinessHoursStart string         `json:"businessHoursStart,omitempty" yaml:"businessHoursStart,omitempty"` // "HH:MM"
	BusinessHoursEnd   string         `json:"businessHoursEnd,omitempty" yaml:"businessHoursEnd,omitempty"`     // "HH:MM"
	WorkingDays        []time.Weekday `json:"workingDays,omitempty" yaml:"workingDays,omitempty"`

	RepeatEscalation      bool `json:"repeatEscalation" yaml:"repeatEscalation"`
	RepeatIntervalMinutes int  `json:"repeatIntervalMinutes,omitempty" yaml:"repeatIntervalMinutes,omitempty"`
	MaxRepeats            int  `json:"maxRepeats,omitempty" yaml:"maxRepeats,omitempty"` // 0 = unlimited

	Actions RuleActions `json:"actions" yaml:"actions"`
}

// ThresholdMinutes returns the rule's time threshold normalized to minutes.
func (r EscalationRule) ThresholdMinutes() int {
	return r.TimeThreshold * r.TimeUnit.Minutes()
}

// NotificationChannels returns the rule's enabled channels, falling back to
// DefaultChannels when unrestricted.
func (r EscalationRule) NotificationChannels() []Channel {
	if len(r.Actions.Channels) > 0 {
		return r.Actions.Channels
	}
	return DefaultChannels
}

// Validate checks the rule's structural invariants. A rule failing
// validation is skipped for the pass, never fatal to the batch.
func (r EscalationRule) Validate() error {
	if r.ID == "" {
		return errors.New("rule has no id")
	}
	if r.TimeThreshold <= 0 {
		return errors.Errorf("rule %s: time threshold must be positive, got %d", r.ID, r.TimeThreshold)
	}
	switch r.TimeCondition {
	case TimeUnassigned, TimeNoResponse, TimeResolution, TimeCustom:
	default:
		return errors.Errorf("rule %s: unknown time condition %q", r.ID, r.TimeCondition)
	}
	switch r.TimeUnit {
	case UnitMinutes, UnitHours, UnitDays:
	default:
		return errors.Errorf("rule %s: unknown time unit %q", r.ID, r.TimeUnit)
	}
	if r.BusinessHoursOnly {
		if len(r.WorkingDays) == 0 {
			return errors.Errorf("rule %s: business hours enabled with empty working days", r.ID)
		}
		for _, d := range r.WorkingDays {
			if d < time.Sunday || d > time.Saturday {
				return errors.Errorf("rule %s: working day %d out of range", r.ID, d)
			}
		}
		start, err := ParseClock(r.BusinessHoursStart)
		if err != nil {
			return errors.Wrapf(err, "rule %s: bad business hours start", r.ID)
		}
		end, err := ParseClock(r.BusinessHoursEnd)
		if err != nil {
			return errors.Wrapf(err, "rule %s: bad business hours end", r.ID)
		}
		if start >= end {
			return errors.Errorf("rule %s: business hours start %q not before end %q", r.ID, r.BusinessHoursStart, r.BusinessHoursEnd)
		}
	}
	if r.RepeatEscalation && r.RepeatIntervalMinutes <= 0 {
		return errors.Errorf("rule %s: repeat escalation enabled with non-positive interval %d", r.ID, r.RepeatIntervalMinutes)
	}
	return nil
}

// ParseClock parses a wall-clock "HH:MM" string into a minute-of-day value.
func ParseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("clock value %q is not HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("clock value %q has bad hour", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock value %q has bad minute", s)
	}
	return h*60 + m, nil
}
