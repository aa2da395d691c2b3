package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andrej220/synctity/pkg/config"
	"github.com/andrej220/synctity/pkg/profile"
	"github.com/andrej220/synctity/pkg/rsync"
)

const profilesFile = ".synctity.yaml"

func defaultProfilesPath() string {
	if p := os.Getenv("SYNCTITY_PROFILES"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return profilesFile
	}
	return filepath.Join(home, profilesFile)
}

// storeFlags are shared by every subcommand that touches the profile file.
type storeFlags struct {
	path string
}

func (s *storeFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&s.path, "profiles", defaultProfilesPath(), "profile file")
}

func (s *storeFlags) open() (*profile.Store, error) {
	backend, err := config.NewStore(config.FileStore, &config.FileConfig{Path: s.path})
	if err != nil {
		return nil, err
	}
	return profile.NewStore(backend), nil
}

func (s *storeFlags) load() (*profile.Store, *profile.Set, error) {
	store, err := s.open()
	if err != nil {
		return nil, nil, err
	}
	set, err := store.Load()
	if err != nil {
		return nil, nil, err
	}
	return store, set, nil
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

// parse returns the exit status to use when parsing fails, or -1.
func parse(fs *flag.FlagSet, args []string) int {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	return -1
}

func fail(stderr io.Writer, err error) int {
	fmt.Fprintf(stderr, "synctity: %v\n", err)
	return 1
}

func listProfiles(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("list", stderr)
	var sf storeFlags
	sf.register(fs)
	if code := parse(fs, args); code >= 0 {
		return code
	}
	_, set, err := sf.load()
	if err != nil {
		return fail(stderr, err)
	}
	for _, p := range set.Profiles {
		fmt.Fprintf(stdout, "%s\t%d commands\n", p.Name, len(p.Commands))
	}
	return 0
}

func showProfile(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("show", stderr)
	var sf storeFlags
	sf.register(fs)
	name := fs.String("profile", "", "profile name")
	reverse := fs.Bool("reverse", false, "show the reverse plan")
	if code := parse(fs, args); code >= 0 {
		return code
	}
	_, set, err := sf.load()
	if err != nil {
		return fail(stderr, err)
	}
	p, err := set.Find(*name)
	if err != nil {
		return fail(stderr, fmt.Errorf("%w: %q", err, *name))
	}

	fmt.Fprintf(stdout, "%s (%s)\n", p.Name, p.ID)
	for i, d := range p.Descriptions() {
		fmt.Fprintf(stdout, "  %d. %s\n", i, d)
	}
	fmt.Fprintln(stdout, "plan:")
	for _, c := range p.Steps(*reverse) {
		fmt.Fprintf(stdout, "  %s\n", c)
	}
	return 0
}

func newProfile(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("new", stderr)
	var sf storeFlags
	sf.register(fs)
	name := fs.String("profile", profile.DefaultName, "profile name")
	pre := fs.String("pre", "", "command run before a forward sync")
	post := fs.String("post", "", "command run after a forward sync")
	if code := parse(fs, args); code >= 0 {
		return code
	}
	store, set, err := sf.load()
	if err != nil {
		return fail(stderr, err)
	}
	p := profile.New(*name)
	p.PreSync, p.PostSync = *pre, *post
	set.Append(p)
	if err := store.Save(set); err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintf(stdout, "created %s\n", p.Name)
	return 0
}

// optionList collects repeated -opt flags.
type optionList []string

func (o *optionList) String() string     { return strings.Join(*o, ",") }
func (o *optionList) Set(v string) error { *o = append(*o, v); return nil }

func addCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("add", stderr)
	var sf storeFlags
	sf.register(fs)
	name := fs.String("profile", "", "profile name")
	src := fs.String("src", "", "source, [user@]host:path or a local path")
	dst := fs.String("dst", "", "destination, [user@]host:path or a local path")
	live := fs.Bool("live", false, "do not add the dry run flag")
	var opts optionList
	fs.Var(&opts, "opt", "rsync option as key or key=param, repeatable")
	if code := parse(fs, args); code >= 0 {
		return code
	}

	store, set, err := sf.load()
	if err != nil {
		return fail(stderr, err)
	}
	p, err := set.Find(*name)
	if err != nil {
		return fail(stderr, fmt.Errorf("%w: %q", err, *name))
	}
	cmd := rsync.NewCommand(rsync.ParsePath(*src), rsync.ParsePath(*dst))
	if *live {
		cmd.Options.Disable("n")
	}
	for _, o := range opts {
		cmd.Options.Enable(rsync.ParseOption(o))
	}
	if err := cmd.Validate(); err != nil {
		return fail(stderr, err)
	}
	p.Add(cmd)
	if err := store.Save(set); err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintln(stdout, cmd.Forward())
	return 0
}

func removeProfile(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("rm", stderr)
	var sf storeFlags
	sf.register(fs)
	name := fs.String("profile", "", "profile name")
	index := fs.Int("index", -1, "remove only the command at this index")
	if code := parse(fs, args); code >= 0 {
		return code
	}

	store, set, err := sf.load()
	if err != nil {
		return fail(stderr, err)
	}
	p, err := set.Find(*name)
	if err != nil {
		return fail(stderr, fmt.Errorf("%w: %q", err, *name))
	}
	if *index >= 0 {
		cmd := p.Get(*index)
		if cmd == nil {
			return fail(stderr, fmt.Errorf("profile %q has no command %d", p.Name, *index))
		}
		p.Remove(*index)
		fmt.Fprintf(stdout, "removed %s\n", cmd.Description())
	} else {
		for i, q := range set.Profiles {
			if q == p {
				set.Remove(i)
				break
			}
		}
		fmt.Fprintf(stdout, "removed %s\n", p.Name)
	}
	if err := store.Save(set); err != nil {
		return fail(stderr, err)
	}
	return 0
}

// given reports the flags set on the command line, so an empty value can
// still clear a field.
func given(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

func setProfile(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("set", stderr)
	var sf storeFlags
	sf.register(fs)
	name := fs.String("profile", "", "profile name")
	rename := fs.String("name", "", "new profile name")
	pre := fs.String("pre", "", "command run before a forward sync, empty clears it")
	post := fs.String("post", "", "command run after a forward sync, empty clears it")
	if code := parse(fs, args); code >= 0 {
		return code
	}

	store, set, err := sf.load()
	if err != nil {
		return fail(stderr, err)
	}
	p, err := set.Find(*name)
	if err != nil {
		return fail(stderr, fmt.Errorf("%w: %q", err, *name))
	}
	flags := given(fs)
	if flags["name"] {
		p.Name = *rename
	}
	if flags["pre"] {
		p.PreSync = *pre
	}
	if flags["post"] {
		p.PostSync = *post
	}
	if err := store.Save(set); err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintf(stdout, "updated %s\n", p.Name)
	return 0
}

func editCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("edit", stderr)
	var sf storeFlags
	sf.register(fs)
	name := fs.String("profile", "", "profile name")
	index := fs.Int("index", -1, "index of the command to edit")
	src := fs.String("src", "", "new source, [user@]host:path or a local path")
	dst := fs.String("dst", "", "new destination, [user@]host:path or a local path")
	live := fs.Bool("live", false, "drop the dry run flag")
	dry := fs.Bool("dry", false, "add the dry run flag")
	var opts, unopts optionList
	fs.Var(&opts, "opt", "rsync option to enable as key or key=param, repeatable")
	fs.Var(&unopts, "unopt", "rsync option to disable as key or key=param, repeatable")
	if code := parse(fs, args); code >= 0 {
		return code
	}
	if *live && *dry {
		return fail(stderr, errors.New("-live and -dry are exclusive"))
	}

	store, set, err := sf.load()
	if err != nil {
		return fail(stderr, err)
	}
	p, err := set.Find(*name)
	if err != nil {
		return fail(stderr, fmt.Errorf("%w: %q", err, *name))
	}
	cmd := p.Get(*index)
	if cmd == nil {
		return fail(stderr, fmt.Errorf("profile %q has no command %d", p.Name, *index))
	}
	if cmd.Options == nil {
		cmd.Options = rsync.NewOptions()
	}

	flags := given(fs)
	if flags["src"] {
		cmd.Source = rsync.ParsePath(*src)
	}
	if flags["dst"] {
		cmd.Destination = rsync.ParsePath(*dst)
	}
	for _, o := range unopts {
		key, param := rsync.ParseOption(o)
		if param == "" {
			cmd.Options.Disable(key)
		} else {
			cmd.Options.Disable(key, param)
		}
	}
	for _, o := range opts {
		cmd.Options.Enable(rsync.ParseOption(o))
	}
	switch {
	case *live:
		cmd.Options.Disable("n")
	case *dry:
		cmd.Options.Enable("n", "")
	}
	if err := cmd.Validate(); err != nil {
		return fail(stderr, err)
	}
	if err := store.Save(set); err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintln(stdout, cmd.Forward())
	return 0
}
