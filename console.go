package smokerlog

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/shlex"
	"github.com/spf13/pflag"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

var (
	// Returned by a command that wants the application to exit.
	ErrQuit = errors.New("quit")

	ErrUnknownCommand   = errors.New("unknown command")
	ErrAmbiguousCommand = errors.New("ambiguous command")
)

type Command struct {
	Name  string
	Usage string
	Help  string
	// Flags, if set, declares the command's flags on a fresh flag set before
	// every run.
	Flags func(fs *pflag.FlagSet)
	Run   func(fs *pflag.FlagSet) error
}

// Console dispatches input lines to commands. A command may be abbreviated
// to any prefix that matches it alone; an exact name always wins.
type Console struct {
	commands map[string]Command
	out      io.Writer
}

func NewConsole(out io.Writer) *Console {
	return &Console{
		commands: make(map[string]Command),
		out:      out,
	}
}

func (c *Console) Register(cmd Command) {
	c.commands[cmd.Name] = cmd
}

func (c *Console) Out() io.Writer {
	return c.out
}

func (c *Console) Names() []string {
	names := maps.Keys(c.commands)
	slices.Sort(names)
	return names
}

// Resolve finds the command for name. On ErrAmbiguousCommand the matching
// names are returned as well.
func (c *Console) Resolve(name string) (Command, []string, error) {
	if cmd, ok := c.commands[name]; ok {
		return cmd, nil, nil
	}

	candidates := Filter(c.Names(), func(n string) bool {
		return strings.HasPrefix(n, name)
	})

	switch len(candidates) {
	case 0:
		return Command{}, nil, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	case 1:
		return c.commands[candidates[0]], nil, nil
	default:
		return Command{}, candidates, fmt.Errorf("%w: %q", ErrAmbiguousCommand, name)
	}
}

// Execute runs one input line. Problems with the line itself are reported to
// the user and swallowed; only ErrQuit and errors returned by the command are
// passed on.
func (c *Console) Execute(line string) error {
	args, err := shlex.Split(line)
	if err != nil {
		fmt.Fprintf(c.out, "cannot parse input: %v\n", err)
		return nil
	}
	if len(args) == 0 {
		return nil
	}

	cmd, candidates, err := c.Resolve(args[0])
	switch {
	case errors.Is(err, ErrAmbiguousCommand):
		fmt.Fprintf(c.out, "'%s' is ambiguous\n", args[0])
		fmt.Fprintln(c.out, "matching commands:")
		for _, name := range candidates {
			fmt.Fprintf(c.out, "\t%s\n", name)
		}
		return nil
	case errors.Is(err, ErrUnknownCommand):
		fmt.Fprintf(c.out, "'%s' is not a recognized command.\n", args[0])
		c.PrintHelp()
		return nil
	}

	fs := pflag.NewFlagSet(cmd.Name, pflag.ContinueOnError)
	fs.SetOutput(c.out)
	fs.Usage = func() {
		fmt.Fprintf(c.out, "usage: %s %s\n%s\n", cmd.Name, cmd.Usage, cmd.Help)
		fs.PrintDefaults()
	}
	if cmd.Flags != nil {
		cmd.Flags(fs)
	}
	if err := fs.Parse(args[1:]); err != nil {
		if !errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintf(c.out, "%s: %v\n", cmd.Name, err)
		}
		return nil
	}

	return cmd.Run(fs)
}

func (c *Console) PrintHelp() {
	fmt.Fprintln(c.out, "commands:")
	for _, name := range c.Names() {
		fmt.Fprintf(c.out, "\t%s - %s\n", name, c.commands[name].Help)
	}
}
