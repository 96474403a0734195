// Package matchfilter implements the capture-time payload match filter —
// a single regular expression applied to the raw SIP payload before any
// Call is created. It is distinct from (and simpler than) the display
// filter, which is an external collaborator's job.
package matchfilter

import (
	"fmt"
	"regexp"
)

// Opts configures a Filter. Struct tags let internal/config bind it
// directly from viper without a copy step.
type Opts struct {
	Expr         string `mapstructure:"expr"` // pattern; empty means "always matches"
	ICase        bool   `mapstructure:"icase"`
	Invert       bool   `mapstructure:"invert"`
	InviteOnly   bool   `mapstructure:"invite_only"`
	CompleteOnly bool   `mapstructure:"complete_only"`
}

// Filter is the compiled, evaluable form of Opts. The zero Filter (from
// Compile with an empty Expr) always matches.
type Filter struct {
	opts Opts
	re   *regexp.Regexp
}

// Compile builds a Filter from Opts. A non-empty Expr that fails to
// compile is a configuration error and is fatal to initialization.
func Compile(opts Opts) (*Filter, error) {
	f := &Filter{opts: opts}
	if opts.Expr == "" {
		return f, nil
	}

	pattern := opts.Expr
	if opts.ICase {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("matchfilter: invalid expression %q: %w", opts.Expr, err)
	}
	f.re = re
	return f, nil
}

// Match applies the filter to a raw SIP payload. Everything matches when no
// expression is configured; otherwise the invert flag flips the regex's
// verdict.
func (f *Filter) Match(payload []byte) bool {
	if f.re == nil {
		return true
	}
	matched := f.re.Match(payload)
	if f.opts.Invert {
		return !matched
	}
	return matched
}

// Expr returns the configured pattern string (possibly empty).
func (f *Filter) Expr() string { return f.opts.Expr }

// InviteOnly reports whether only INVITE-initiated dialogs are admitted.
func (f *Filter) InviteOnly() bool { return f.opts.InviteOnly }

// CompleteOnly reports whether only calls whose first observed message is a
// dialog-initiating request (not a response, not ACK) are admitted.
func (f *Filter) CompleteOnly() bool { return f.opts.CompleteOnly }
