package models

import (
	"fmt"
	"strings"
)

// Condition is the closed set of item conditions a listing can declare.
type Condition string

const (
	ConditionNew     Condition = "NEW"
	ConditionLikeNew Condition = "LIKE_NEW"
	ConditionGood    Condition = "GOOD"
	ConditionFair    Condition = "FAIR"
	ConditionPoor    Condition = "POOR"
)

var conditionLabels = map[Condition]string{
	ConditionNew:     "New",
	ConditionLikeNew: "Like New",
	ConditionGood:    "Good",
	ConditionFair:    "Fair",
	ConditionPoor:    "Poor",
}

// Conditions lists every condition from best to worst.
func Conditions() []Condition {
	return []Condition{ConditionNew, ConditionLikeNew, ConditionGood, ConditionFair, ConditionPoor}
}

func (c Condition) Valid() bool {
	_, ok := conditionLabels[c]
	return ok
}

// Label returns the display text, or the raw value for unknown conditions.
func (c Condition) Label() string {
	if label, ok := conditionLabels[c]; ok {
		return label
	}
	return string(c)
}

// ParseCondition accepts the stored form ("LIKE_NEW") as well as the display
// label ("like new"), ignoring case.
func ParseCondition(s string) (Condition, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	normalized = strings.NewReplacer(" ", "_", "-", "_").Replace(normalized)

	c := Condition(normalized)
	if !c.Valid() {
		return "", fmt.Errorf("unknown condition %q", s)
	}
	return c, nil
}
