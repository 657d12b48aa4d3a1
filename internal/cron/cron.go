// Package cron turns cron expressions into English descriptions.
package cron

import (
	"strings"
	"sync"

	crondesc "github.com/lnquy/cron"
	robfig "github.com/robfig/cron/v3"
)

// InvalidCron is returned by Describe for anything it cannot parse.
const InvalidCron = "Invalid Cron"

var parser = robfig.NewParser(
	robfig.Minute | robfig.Hour | robfig.Dom | robfig.Month | robfig.Dow | robfig.Descriptor,
)

var (
	descriptorOnce sync.Once
	descriptor     *crondesc.ExpressionDescriptor
	descriptorErr  error
)

func expressionDescriptor() (*crondesc.ExpressionDescriptor, error) {
	descriptorOnce.Do(func() {
		descriptor, descriptorErr = crondesc.NewDescriptor()
	})
	return descriptor, descriptorErr
}

// Describe returns a human-readable description of expr, or InvalidCron.
// It never panics.
func Describe(expr string) (desc string) {
	defer func() {
		if r := recover(); r != nil {
			desc = InvalidCron
		}
	}()

	expr = strings.TrimSpace(expr)
	if expr == "" {
		return InvalidCron
	}

	if _, err := parser.Parse(expr); err != nil {
		return InvalidCron
	}

	d, err := expressionDescriptor()
	if err != nil {
		return InvalidCron
	}

	out, err := d.ToDescription(expr, crondesc.Locale_en)
	if err != nil || out == "" {
		return InvalidCron
	}
	return out
}
