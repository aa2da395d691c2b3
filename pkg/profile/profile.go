// Package profile groups rsync commands into named profiles, plans the
// shell commands a profile run executes, and persists profile sets.
package profile

import (
	"github.com/andrej220/synctity/pkg/rsync"
	"github.com/andrej220/synctity/pkg/runner"
	"github.com/google/uuid"
)

// DefaultName is the name given to a profile created without one.
const DefaultName = "NewProfile"

// Profile is a named, ordered collection of rsync commands with optional
// shell commands run before and after a forward sync.
type Profile struct {
	ID       string           `yaml:"id" json:"id" bson:"id" validate:"omitempty,uuid"`
	Name     string           `yaml:"name" json:"name" bson:"name" validate:"required,profilename"`
	PreSync  string           `yaml:"presync,omitempty" json:"presync,omitempty" bson:"presync,omitempty"`
	PostSync string           `yaml:"postsync,omitempty" json:"postsync,omitempty" bson:"postsync,omitempty"`
	Commands []*rsync.Command `yaml:"commands" json:"commands" bson:"commands" validate:"dive,required"`
}

// New returns an empty profile with a fresh ID.
func New(name string) *Profile {
	if name == "" {
		name = DefaultName
	}
	return &Profile{ID: uuid.NewString(), Name: name}
}

func (p *Profile) Add(cmd *rsync.Command) {
	p.Commands = append(p.Commands, cmd)
}

// Remove deletes the command at index; out of range indexes are ignored.
func (p *Profile) Remove(index int) {
	if index < 0 || index >= len(p.Commands) {
		return
	}
	p.Commands = append(p.Commands[:index], p.Commands[index+1:]...)
}

// Get returns the command at index, or nil.
func (p *Profile) Get(index int) *rsync.Command {
	if index < 0 || index >= len(p.Commands) {
		return nil
	}
	return p.Commands[index]
}

// Plan renders the shell commands a run of p executes, in order. A forward
// run renders every command source -> destination and carries the pre and
// post sync commands; a reverse run renders destination -> source only.
func (p *Profile) Plan(reverse bool) (commands []string, prepend, appendCmd string) {
	commands = make([]string, 0, len(p.Commands))
	for _, c := range p.Commands {
		if reverse {
			commands = append(commands, c.Reverse())
		} else {
			commands = append(commands, c.Forward())
		}
	}
	if reverse {
		return commands, "", ""
	}
	return commands, p.PreSync, p.PostSync
}

// Steps is the full command list a run of p executes, pre and post sync
// commands included.
func (p *Profile) Steps(reverse bool) []string {
	return runner.Steps(p.Plan(reverse))
}

// Descriptions lists a short label for every command.
func (p *Profile) Descriptions() []string {
	out := make([]string, len(p.Commands))
	for i, c := range p.Commands {
		out[i] = c.Description()
	}
	return out
}
