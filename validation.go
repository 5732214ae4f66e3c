package literecord

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/asaskevich/govalidator"
)

type rule struct {
	name  string
	param string
}

// Supported validation rules.
const (
	RulePresence  = "presence"
	RuleLengthMax = "length.max"
	RuleLengthMin = "length.min"
	RuleEmail     = "email"
	RuleNumeric   = "numeric"
	RuleUUID      = "uuid"
)

func parseRule(def string) (rule, error) {
	name, param, _ := strings.Cut(strings.TrimSpace(def), "=")
	r := rule{name: name, param: param}
	switch name {
	case RulePresence, RuleEmail, RuleNumeric, RuleUUID:
		if param != "" {
			return rule{}, fmt.Errorf("rule %s takes no parameter", name)
		}
	case RuleLengthMax, RuleLengthMin:
		if _, err := strconv.Atoi(param); err != nil {
			return rule{}, fmt.Errorf("rule %s needs an integer parameter, got %q", name, param)
		}
	default:
		return rule{}, fmt.Errorf("unknown validation rule %q", def)
	}
	return r, nil
}

// check returns the failure message for value, or "" when it passes.
// Only presence rejects missing values.
func (r rule) check(value any) string {
	str := ""
	if value != nil {
		str = govalidator.ToString(value)
	}
	if r.name == RulePresence {
		if value == nil || govalidator.IsNull(strings.TrimSpace(str)) {
			return "can't be blank"
		}
		return ""
	}
	if value == nil {
		return ""
	}

	switch r.name {
	case RuleLengthMax:
		if !govalidator.MaxStringLength(str, r.param) {
			return fmt.Sprintf("is too long (maximum is %s characters)", r.param)
		}
	case RuleLengthMin:
		if !govalidator.MinStringLength(str, r.param) {
			return fmt.Sprintf("is too short (minimum is %s characters)", r.param)
		}
	case RuleEmail:
		if !govalidator.IsEmail(str) {
			return "is not a valid email"
		}
	case RuleNumeric:
		if !govalidator.IsFloat(str) {
			return "is not a number"
		}
	case RuleUUID:
		if !govalidator.IsUUID(str) {
			return "is not a valid uuid"
		}
	}
	return ""
}

func validateRecord(r *Record) error {
	attrs := make([]string, 0, len(r.schema.Rules))
	for attr := range r.schema.Rules {
		attrs = append(attrs, attr)
	}
	sort.Strings(attrs)

	errs := map[string][]string{}
	for _, attr := range attrs {
		for _, def := range r.schema.Rules[attr] {
			ru, err := parseRule(def)
			if err != nil {
				return fmt.Errorf("schema %s: %w", r.schema.Name, err)
			}
			if msg := ru.check(r.Get(attr)); msg != "" {
				errs[attr] = append(errs[attr], prettify(attr)+" "+msg)
			}
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// prettify turns "organization_id" into "Organization id".
func prettify(attr string) string {
	s := strings.ReplaceAll(attr, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
