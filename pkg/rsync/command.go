package rsync

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Program is the executable every Command renders.
const Program = "rsync"

var validate = validator.New()

// Command is one rsync invocation: rsync OPTIONS SOURCE DESTINATION.
// It can run backwards by swapping source and destination.
type Command struct {
	Source      Path    `yaml:"source" json:"source" bson:"source"`
	Destination Path    `yaml:"destination" json:"destination" bson:"destination"`
	Options     Options `yaml:"options,omitempty" json:"options,omitempty" bson:"options,omitempty"`
}

// NewCommand returns a command with dry run (-n) enabled.
func NewCommand(src, dst Path) *Command {
	opts := NewOptions()
	opts.Enable("n", "")
	return &Command{Source: src, Destination: dst, Options: opts}
}

// Forward renders the command running source -> destination.
func (c *Command) Forward() string {
	return c.line(c.Source, c.Destination)
}

// Reverse renders the command running destination -> source.
func (c *Command) Reverse() string {
	return c.line(c.Destination, c.Source)
}

func (c *Command) String() string {
	return c.Forward()
}

func (c *Command) line(from, to Path) string {
	parts := []string{Program}
	if opts := c.Options.String(); opts != "" {
		parts = append(parts, opts)
	}
	parts = append(parts, from.Quoted(), to.Quoted())
	return strings.Join(parts, " ")
}

// Description is a short human label: host:path --> host:path.
func (c *Command) Description() string {
	return describe(c.Source) + " --> " + describe(c.Destination)
}

func describe(p Path) string {
	if p.Host != "" {
		return p.Host + ":" + p.Path
	}
	return p.Path
}

// Validate checks that both ends of the command name a path.
func (c *Command) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid command %q: %w", c.Description(), err)
	}
	return nil
}
