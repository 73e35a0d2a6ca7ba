package domain

// RuleConfig defines an operator-authored custom risk rule. Custom rules
// extend the built-in factor library: each one contributes
// expression-score * weight on top of the fixed factors, with its reason
// appended after the factor reasons.
type RuleConfig struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// CEL expression to evaluate. Must return bool, int, or double.
	Expression string `json:"expression"`

	// Weight multiplies the expression score into a contribution.
	Weight float64 `json:"weight"`

	// Reason is appended to the assessment when the rule contributes.
	Reason string `json:"reason"`

	// Whether rule is active
	Enabled bool `json:"enabled"`
}

// RuleResult is the output of a custom rule evaluation.
type RuleResult struct {
	RuleID       string  `json:"ruleId"`
	Contribution float64 `json:"contribution"`
	Triggered    bool    `json:"triggered"`
	Reason       string  `json:"reason,omitempty"`
	Err          string  `json:"error,omitempty"`
}
