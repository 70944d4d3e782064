package recovery

import "strings"

// crashIndicators are lowercase substrings that mark an error as a
// workstation crash rather than a musical failure (bad device name,
// unknown parameter, validation error). Matching is case-insensitive.
//
// The list mixes three layers because crash evidence arrives through
// all of them: Go net errors from our own sockets, bridge reply text
// quoting the remote script, and Windows socket codes relayed verbatim
// when the workstation host runs there.
var crashIndicators = []string{
	"connection reset",
	"connection refused",
	"forcibly closed",
	"broken pipe",
	"socket closed",
	"use of closed network connection",
	"i/o timeout",
	"no response from",
	"timeout: no response",
	"osc error",
	"remote script",
	"failed to schedule",
	"c++ exception",
	"winerror 10054",
	"winerror 10061",
}

// Classifier decides whether an error message indicates a workstation
// crash. The built-in indicator set can be extended from configuration
// for site-specific bridge builds that emit their own failure strings.
type Classifier struct {
	indicators []string
}

// NewClassifier creates a classifier with the built-in indicators plus
// any extras. Extras are matched case-insensitively like the built-ins;
// empty strings are dropped because they would match everything.
func NewClassifier(extra ...string) *Classifier {
	indicators := make([]string, 0, len(crashIndicators)+len(extra))
	indicators = append(indicators, crashIndicators...)
	for _, e := range extra {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			indicators = append(indicators, e)
		}
	}
	return &Classifier{indicators: indicators}
}

// IsCrashMessage reports whether msg contains any crash indicator.
func (c *Classifier) IsCrashMessage(msg string) bool {
	_, ok := c.matchIndicator(msg)
	return ok
}

// IsCrashError reports whether err is classified as a workstation crash.
// A nil error is never a crash.
func (c *Classifier) IsCrashError(err error) bool {
	if err == nil {
		return false
	}
	return c.IsCrashMessage(err.Error())
}

// FirstCrashIndicator scans messages in order and returns the first one
// containing a crash indicator. Used to lift crash evidence out of
// aggregated run errors, where a single reset among many musical
// failures still means the workstation went away.
func (c *Classifier) FirstCrashIndicator(msgs ...string) (string, bool) {
	for _, msg := range msgs {
		if _, ok := c.matchIndicator(msg); ok {
			return msg, true
		}
	}
	return "", false
}

func (c *Classifier) matchIndicator(msg string) (string, bool) {
	lower := strings.ToLower(msg)
	for _, ind := range c.indicators {
		if strings.Contains(lower, ind) {
			return ind, true
		}
	}
	return "", false
}
