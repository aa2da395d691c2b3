// Package rsync models rsync command lines as structured data: network
// paths, option flags and source/destination commands.
package rsync

import (
	"strings"

	"github.com/kballard/go-shellquote"
)

// Path is a network path as understood by rsync: user@host:path.
type Path struct {
	User string `yaml:"user,omitempty" json:"user,omitempty" bson:"user,omitempty"`
	Host string `yaml:"host,omitempty" json:"host,omitempty" bson:"host,omitempty"`
	Path string `yaml:"path" json:"path" bson:"path" validate:"required"`
}

// String renders the path unquoted. A user without a host is bound to
// localhost, and an empty path renders as ".".
func (p Path) String() string {
	return p.prefix() + orDot(p.prefix(), p.Path)
}

// Quoted renders the path for a shell command line. A leading ~ or ~user
// component is left bare so the shell still expands it.
func (p Path) Quoted() string {
	prefix := p.prefix()
	if prefix == "" && p.Path == "" {
		return "."
	}
	return quoteWord(prefix + tildeSplit(p.Path))
}

func (p Path) prefix() string {
	var b strings.Builder
	if p.User != "" {
		b.WriteString(p.User)
		b.WriteString("@")
	}
	switch {
	case p.Host != "":
		b.WriteString(p.Host)
		b.WriteString(":")
	case p.User != "":
		b.WriteString("localhost:")
	}
	return b.String()
}

func orDot(prefix, path string) string {
	if prefix == "" && path == "" {
		return "."
	}
	return path
}

// tildeSplit marks the end of the tilde prefix of path, including its first
// slash, with a NUL so quoteWord can keep it outside the quoted part.
func tildeSplit(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	end := strings.IndexByte(path, '/')
	if end < 0 {
		end = len(path)
	} else {
		end++
	}
	return path[:end] + "\x00" + path[end:]
}

func quoteWord(word string) string {
	head, tail, found := strings.Cut(word, "\x00")
	if !found {
		return shellquote.Join(word)
	}
	// host and user parts ahead of the tilde are quoted on their own
	at := strings.LastIndexByte(head, ':')
	lead, tilde := head[:at+1], head[at+1:]
	out := tilde
	if lead != "" {
		out = shellquote.Join(lead) + tilde
	}
	if tail != "" {
		out += shellquote.Join(tail)
	}
	return out
}

// ParsePath splits [user@]host:path the way rsync does: a colon counts as
// the host separator only when no slash comes before it.
func ParsePath(s string) Path {
	colon := strings.IndexByte(s, ':')
	if colon < 0 || strings.IndexByte(s[:colon], '/') >= 0 {
		return Path{Path: s}
	}
	p := Path{Host: s[:colon], Path: s[colon+1:]}
	if user, host, ok := strings.Cut(p.Host, "@"); ok {
		p.User, p.Host = user, host
	}
	return p
}
