package mainboilerplate

import (
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"distfs/archive"
	"distfs/node"
	"distfs/protocol"
	"distfs/store"
)

// NodeConfig configures the file tree and archives of a node.
type NodeConfig struct {
	Root       string `long:"root" env:"ROOT" description:"Root directory of stored files. Defaults by file class"`
	ArchiveDir string `long:"archive-dir" env:"ARCHIVE_DIR" default:"./tar" description:"Directory within which archives are built"`
	Archiver   string `long:"archiver" env:"ARCHIVER" default:"tar" choice:"tar" choice:"native" description:"Build archives with an external tar tool, or in-process"`
	TarPath    string `long:"tar-path" env:"TAR_PATH" default:"tar" description:"Path of the external tar tool"`
}

// BuildNode returns a Node of |class| over the host filesystem, rooted at
// the configured Root or else |defaultRoot|. Missing directories are created.
func (cfg NodeConfig) BuildNode(class protocol.Class, defaultRoot string) (*node.Node, error) {
	var fs = afero.NewOsFs()

	var root = cfg.Root
	if root == "" {
		root = defaultRoot
	}
	st, err := store.New(fs, root)
	if err != nil {
		return nil, err
	}
	if err = fs.MkdirAll(cfg.ArchiveDir, 0755); err != nil {
		return nil, errors.Wrapf(err, "creating archive directory %s", cfg.ArchiveDir)
	}

	var builder archive.Builder
	if cfg.Archiver == "native" {
		builder = archive.Native{Fs: fs}
	} else {
		builder = archive.TarCommand{Path: cfg.TarPath}
	}

	return &node.Node{
		Store:    st,
		Archiver: &archive.Archiver{Builder: builder, Fs: fs, Dir: cfg.ArchiveDir},
		Class:    class,
	}, nil
}
