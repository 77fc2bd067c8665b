package session

import (
	"time"

	"xconnect/util"
)

// Dialect is everything vendor-specific about talking to a device:
// how the stream is framed, how to log in, what an answer to an
// ordinary command looks like, and how to commit and leave.
type Dialect struct {
	Framer     Framer
	LineEnding string
	Greeting   Matcher

	Login []Exchange
	Reply Matcher // matcher for every script command

	// Wrap turns a command's text into what is written, for example a
	// configuration fragment into a load RPC.  Nil writes Text as is.
	Wrap func(text string) string

	// PreCheck turns a command's Check filter into a read-only request
	// whose reply is tested with ConfigPresent.  Nil disables
	// pre-checks.
	PreCheck func(filter string) string

	Commit []Exchange
	Logout []string
}

// Options returns channel options for this dialect.
func (d Dialect) Options(timeout time.Duration, logger *util.Logger) Options {
	return Options{
		Timeout:    timeout,
		Framer:     d.Framer,
		LineEnding: d.LineEnding,
		Greeting:   d.Greeting,
		Logger:     logger,
	}
}

// Render applies Wrap to text.
func (d Dialect) Render(text string) string {
	if d.Wrap == nil {
		return text
	}
	return d.Wrap(text)
}
