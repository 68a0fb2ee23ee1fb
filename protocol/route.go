package protocol

import (
	"path"
	"strings"

	"github.com/pkg/errors"
)

// Class is the destination category of a file.
type Class int

const (
	// Local files are kept on the router itself.
	Local Class = iota
	// Text files (.txt) are stored by backend A.
	Text
	// PDF files (.pdf) are stored by backend B.
	PDF
)

// ErrEmptyName is returned when classifying an empty file name.
var ErrEmptyName = errors.New("empty file name")

// Classes lists every Class in listing and aggregation order.
var Classes = []Class{Local, Text, PDF}

// Classify resolves the Class of a file name or relative path from the
// extension of its final element.
func Classify(name string) (Class, error) {
	var base = path.Base(strings.TrimRight(name, "/"))
	if name == "" || base == "." || base == "/" {
		return Local, ErrEmptyName
	}
	switch path.Ext(base) {
	case ".txt":
		return Text, nil
	case ".pdf":
		return PDF, nil
	default:
		return Local, nil
	}
}

// Keyword is the archive keyword of the Class.
func (c Class) Keyword() string {
	switch c {
	case Text:
		return "txt"
	case PDF:
		return "pdf"
	default:
		return "c"
	}
}

// ClassForKeyword maps an archive keyword to its Class.
func ClassForKeyword(kw string) (Class, bool) {
	for _, c := range Classes {
		if c.Keyword() == kw {
			return c, true
		}
	}
	return Local, false
}

func (c Class) String() string {
	switch c {
	case Text:
		return "text"
	case PDF:
		return "pdf"
	default:
		return "local"
	}
}
