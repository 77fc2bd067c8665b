package command

import (
	"fmt"
	"strings"
	"sync"
	"text/template"

	"github.com/go-playground/validator/v10"

	xerrors "xconnect/internal/errors"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the shared validator used for template arguments.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Template is an immutable command text with named fields.  Arguments
// are a struct whose `validate` tags are checked before rendering, so
// an empty interface name or an out-of-range slot count never reaches
// a device.
type Template struct {
	name string
	op   Op
	text *template.Template
}

// MustTemplate parses text once, panicking on a syntax error.  Missing
// fields are errors at render time.
func MustTemplate(name string, op Op, text string) *Template {
	t := template.Must(template.New(name).Option("missingkey=error").Parse(text))
	return &Template{name: name, op: op, text: t}
}

// Name returns the template name.
func (t *Template) Name() string { return t.name }

// Render validates args and executes the template.
func (t *Template) Render(args any) (string, error) {
	if err := Validator().Struct(args); err != nil {
		return "", fmt.Errorf("%w: %s: %v", xerrors.ErrInvalidTemplateArgs, t.name, err)
	}
	var b strings.Builder
	if err := t.text.Execute(&b, args); err != nil {
		return "", fmt.Errorf("%w: %s: %v", xerrors.ErrInvalidTemplateArgs, t.name, err)
	}
	return b.String(), nil
}

// Command renders the template into a Command on resource.
func (t *Template) Command(resource string, args any) (Command, error) {
	text, err := t.Render(args)
	if err != nil {
		return Command{}, err
	}
	return Command{Op: t.op, Resource: resource, Text: text}, nil
}

// Builder accumulates commands and remembers the first render error so
// compilers can emit a sequence without checking every step.
type Builder struct {
	script Script
	err    error
}

// Add renders t and appends it.
func (b *Builder) Add(t *Template, resource string, args any) {
	b.AddChecked(t, resource, "", args)
}

// AddChecked renders t and appends it with a pre-check filter.
func (b *Builder) AddChecked(t *Template, resource, check string, args any) {
	if b.err != nil {
		return
	}
	c, err := t.Command(resource, args)
	if err != nil {
		b.err = err
		return
	}
	c.Check = check
	b.script = append(b.script, c)
}

// Append adds an already built command.
func (b *Builder) Append(c Command) {
	if b.err == nil {
		b.script = append(b.script, c)
	}
}

// Script returns the accumulated commands or the first error.
func (b *Builder) Script() (Script, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.script, nil
}
