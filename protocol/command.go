// Package protocol defines the commands exchanged between clients, the router
// and backends, their argument grammar and response strings, and the routing
// classes which decide where a file lives.
package protocol

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Verb of a Command.
type Verb int

const (
	Store Verb = iota + 1
	Fetch
	Delete
	List
	Archive
)

// maxArgs is the largest number of arguments taken by any verb.
const maxArgs = 4

var (
	// ErrUnknownVerb is returned when parsing a message with an unrecognized verb.
	ErrUnknownVerb = errors.New("unknown verb")
	// ErrBadArguments is returned for a recognized verb with malformed arguments.
	ErrBadArguments = errors.New("bad arguments")
)

var verbNames = map[Verb]string{
	Store:   "ufile",
	Fetch:   "dfile",
	Delete:  "rmfile",
	List:    "display",
	Archive: "dtar",
}

var verbArity = map[Verb]int{
	Store:   3,
	Fetch:   1,
	Delete:  1,
	List:    1,
	Archive: 1,
}

// String returns the wire name of the Verb.
func (v Verb) String() string {
	if s, ok := verbNames[v]; ok {
		return s
	}
	return "invalid"
}

// ParseVerb maps a wire name to its Verb.
func ParseVerb(s string) (Verb, error) {
	for v, name := range verbNames {
		if name == s {
			return v, nil
		}
	}
	return 0, errors.WithMessagef(ErrUnknownVerb, "%q", s)
}

// Command is a Verb with its ordered arguments. It is parsed from a single
// control message and consumed immediately.
type Command struct {
	Verb Verb
	Args []string
}

// Parse a whitespace-delimited control message into a Command.
func Parse(msg string) (Command, error) {
	var fields = strings.Fields(msg)
	if len(fields) == 0 {
		return Command{}, errors.WithMessage(ErrUnknownVerb, "empty command")
	} else if len(fields) > maxArgs+1 {
		return Command{}, errors.WithMessagef(ErrBadArguments, "too many arguments (%d)", len(fields)-1)
	}

	verb, err := ParseVerb(fields[0])
	if err != nil {
		return Command{}, err
	}
	var cmd = Command{Verb: verb, Args: fields[1:]}
	return cmd, cmd.Validate()
}

// Validate the arity and argument grammar of the Command.
func (c Command) Validate() error {
	want, ok := verbArity[c.Verb]
	if !ok {
		return errors.WithMessagef(ErrUnknownVerb, "verb %d", int(c.Verb))
	}
	if len(c.Args) != want {
		return errors.WithMessagef(ErrBadArguments, "%s expects %d arguments, got %d", c.Verb, want, len(c.Args))
	}
	for _, a := range c.Args {
		if a == "" || strings.ContainsAny(a, " \t\r\n") {
			return errors.WithMessagef(ErrBadArguments, "%s: argument %q is not a single token", c.Verb, a)
		}
	}
	if c.Verb == Store {
		if _, err := c.Size(); err != nil {
			return err
		}
	}
	return nil
}

// Size of a Store command's payload.
func (c Command) Size() (int64, error) {
	if c.Verb != Store || len(c.Args) < 2 {
		return 0, errors.WithMessage(ErrBadArguments, "not a store command")
	}
	n, err := strconv.ParseInt(c.Args[1], 10, 64)
	if err != nil || n < 0 {
		return 0, errors.WithMessagef(ErrBadArguments, "invalid size %q", c.Args[1])
	}
	return n, nil
}

// String encodes the Command as a control message.
func (c Command) String() string {
	return strings.Join(append([]string{c.Verb.String()}, c.Args...), " ")
}

// NewStore builds a Store command of a file name, payload size, and
// destination directory.
func NewStore(name string, size int64, destDir string) Command {
	return Command{Verb: Store, Args: []string{name, strconv.FormatInt(size, 10), destDir}}
}

// NewFetch builds a Fetch command of a relative path.
func NewFetch(relPath string) Command { return Command{Verb: Fetch, Args: []string{relPath}} }

// NewDelete builds a Delete command of a relative path.
func NewDelete(relPath string) Command { return Command{Verb: Delete, Args: []string{relPath}} }

// NewList builds a List command of a directory path.
func NewList(dirPath string) Command { return Command{Verb: List, Args: []string{dirPath}} }

// NewArchive builds an Archive command of a file-type keyword.
func NewArchive(keyword string) Command { return Command{Verb: Archive, Args: []string{keyword}} }
