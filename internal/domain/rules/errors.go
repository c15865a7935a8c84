package rules

import "errors"

var (
	// ErrInvalidRule marks a rule that fails validation.
	ErrInvalidRule = errors.New("invalid rule")
	// ErrRuleFile is returned when a rule file can't be read or parsed.
	ErrRuleFile = errors.New("load rule file")
)
