package archive

import (
	"context"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"distfs/metrics"
)

// Archiver rebuilds per-keyword archives within an archive directory.
type Archiver struct {
	Builder Builder
	// Fs holding Dir. It must be the filesystem Builder writes into.
	Fs afero.Fs
	// Dir into which archives are written.
	Dir string
}

// Path of the archive of |keyword|.
func (a *Archiver) Path(keyword string) string {
	return filepath.Join(a.Dir, keyword+".tar.gz")
}

// Rebuild builds a fresh archive of |srcDir| for |keyword| and returns its
// path. The archive is built aside and renamed into place only on success,
// so a reader of Path never observes a partial or failed build.
func (a *Archiver) Rebuild(ctx context.Context, keyword, srcDir string) (string, error) {
	var path, err = a.rebuild(ctx, keyword, srcDir)

	var status = metrics.Ok
	if err != nil {
		status = metrics.Fail
	}
	metrics.ArchiveBuildsTotal.WithLabelValues(keyword, status).Inc()
	return path, err
}

func (a *Archiver) rebuild(ctx context.Context, keyword, srcDir string) (string, error) {
	if err := a.Fs.MkdirAll(a.Dir, 0755); err != nil {
		return "", errors.Wrapf(err, "creating archive directory %s", a.Dir)
	}
	tmp, err := afero.TempFile(a.Fs, a.Dir, "."+keyword+"-*.tar.gz")
	if err != nil {
		return "", errors.Wrap(err, "creating temporary archive")
	}
	var tmpName = tmp.Name()
	_ = tmp.Close()

	if err = a.Builder.Build(ctx, srcDir, tmpName); err != nil {
		_ = a.Fs.Remove(tmpName)
		return "", err
	}

	var path = a.Path(keyword)
	if err = a.Fs.Rename(tmpName, path); err != nil {
		_ = a.Fs.Remove(tmpName)
		return "", errors.Wrapf(err, "renaming %s to %s", tmpName, path)
	}
	log.WithFields(log.Fields{"keyword": keyword, "src": srcDir, "path": path}).
		Debug("rebuilt archive")
	return path, nil
}
