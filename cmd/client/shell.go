package main

import (
	"bufio"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"distfs/client"
	"distfs/common"
	"distfs/protocol"
)

// uploadExtensions are the file extensions which may be uploaded.
var uploadExtensions = []string{".c", ".txt", ".pdf"}

// shell is the interactive command loop of the client.
type shell struct {
	c *client.Client
	// fs of the working directory, from which uploads are read and into
	// which downloads are written.
	fs  afero.Fs
	out io.Writer
}

// run prompts for and executes commands of |in| until "exit" or EOF. An
// error is returned only if the connection to the router failed.
func (sh *shell) run(in io.Reader) error {
	var scanner = bufio.NewScanner(in)

	for {
		fmt.Fprint(sh.out, "Enter command: ")
		if !scanner.Scan() {
			fmt.Fprintln(sh.out)
			return scanner.Err()
		}
		var fields = strings.Fields(scanner.Text())

		if len(fields) == 0 {
			continue
		} else if fields[0] == "exit" {
			return nil
		}
		resp, err := sh.execute(fields)
		if err != nil {
			return err
		} else if resp != "" {
			fmt.Fprintln(sh.out, resp)
		}
	}
}

func (sh *shell) execute(fields []string) (string, error) {
	var usage = map[string]string{
		"ufile":   "ufile filename destination_path",
		"dfile":   "dfile filename",
		"rmfile":  "rmfile filename",
		"dtar":    "dtar filetype",
		"display": "display path",
	}
	var want = map[string]int{"ufile": 3, "dfile": 2, "rmfile": 2, "dtar": 2, "display": 2}

	if n, ok := want[fields[0]]; !ok {
		return protocol.StatusInvalid, nil
	} else if len(fields) != n {
		return "Invalid Usage\n Usage: " + usage[fields[0]], nil
	}

	switch fields[0] {
	case "ufile":
		return sh.upload(fields[1], fields[2])
	case "dfile":
		var remote = fields[1]
		return sh.download(path.Base(remote), func(w io.Writer) (int64, string, error) {
			return sh.c.Fetch(remote, w)
		})
	case "rmfile":
		return sh.c.Delete(fields[1])
	case "dtar":
		var kw = fields[1]
		if _, ok := protocol.ClassForKeyword(kw); !ok {
			return "Invalid file type\nSupported file types: c, txt, pdf", nil
		}
		return sh.download(kw+".tar.gz", func(w io.Writer) (int64, string, error) {
			return sh.c.Archive(kw, w)
		})
	default: // display
		var dir = fields[1]
		return sh.download("display.txt", func(w io.Writer) (int64, string, error) {
			return sh.c.List(dir, w)
		})
	}
}

func (sh *shell) upload(local, destDir string) (string, error) {
	var ext = filepath.Ext(local)
	var supported bool
	for _, e := range uploadExtensions {
		supported = supported || e == ext
	}
	if !supported {
		return "Invalid file extension\nSupported file extensions: " +
			strings.Join(uploadExtensions, ", "), nil
	}

	f, err := sh.fs.Open(local)
	if err != nil {
		return "File not found", nil
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil || !fi.Mode().IsRegular() {
		return "File not found", nil
	}
	fmt.Fprintf(sh.out, "Uploading %s (%s)\n", fi.Name(), humanize.Bytes(uint64(fi.Size())))

	return sh.c.Store(filepath.Base(local), fi.Size(), destDir, f)
}

func (sh *shell) download(local string, fn client.DownloadFunc) (string, error) {
	n, status, err := client.DownloadFile(sh.fs, local, fn)
	if err != nil && !common.IsSinkError(err) {
		return "", err
	} else if err != nil {
		return fmt.Sprintf("Failed to save %s: %v\n%s", local, err, status), nil
	}

	switch {
	case n < 0:
		return "File not found\n" + status, nil
	case n == 0 && status != protocol.StatusFetched:
		_ = sh.fs.Remove(local)
		return status, nil
	default:
		return fmt.Sprintf("Saved %s (%s)\n%s", local, humanize.Bytes(uint64(n)), status), nil
	}
}
