// Package bundle builds the tar package uploaded for an experiment and unpacks
// the result bundle returned for it.
package bundle

import (
	"archive/tar"
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/coreperf-io/coreperf/client/errs"
)

// ConfigName is the archive name of the experiment descriptor.
const ConfigName = "config.json"

// Entry is a local file stored in the package under ArchiveName.
type Entry struct {
	Path        string
	ArchiveName string
}

// Build writes a tar archive to dest holding configJSON as ConfigName followed
// by every entry in order. A partially written dest is left in place on
// failure.
func Build(dest string, configJSON []byte, entries []Entry) error {
	f, err := os.Create(dest)
	if err != nil {
		return errs.Wrap(errs.Experiment, err, "failed to create package")
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	tw := tar.NewWriter(w)
	hdr := &tar.Header{
		Name:    ConfigName,
		Mode:    0644,
		Size:    int64(len(configJSON)),
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return errs.Wrap(errs.Experiment, err, "failed to write package")
	}
	if _, err := tw.Write(configJSON); err != nil {
		return errs.Wrap(errs.Experiment, err, "failed to write package")
	}
	for _, entry := range entries {
		if err := addFile(tw, entry); err != nil {
			return err
		}
	}
	if err := tw.Close(); err != nil {
		return errs.Wrap(errs.Experiment, err, "failed to finalize package")
	}
	if err := w.Flush(); err != nil {
		return errs.Wrap(errs.Experiment, err, "failed to flush package")
	}
	return errs.Wrap(errs.Experiment, f.Close(), "failed to close package")
}

func addFile(tw *tar.Writer, entry Entry) error {
	src, err := os.Open(entry.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return errs.Wrapf(errs.Experiment, err, "workload %s no longer exists", entry.Path)
		}
		return errs.Wrapf(errs.Experiment, err, "failed to open workload %s", entry.Path)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return errs.Wrapf(errs.Experiment, err, "failed to stat workload %s", entry.Path)
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return errs.Wrapf(errs.Experiment, err, "failed to build header for %s", entry.Path)
	}
	hdr.Name = entry.ArchiveName
	if err := tw.WriteHeader(hdr); err != nil {
		return errs.Wrapf(errs.Experiment, err, "failed to write header for %s", entry.Path)
	}
	if _, err := io.Copy(tw, src); err != nil {
		return errs.Wrapf(errs.Experiment, err, "failed to copy workload %s", entry.Path)
	}
	return nil
}

var gzipMagic = []byte{0x1f, 0x8b}

// Extract unpacks the tar archive at src into destDir. Gzip compressed archives
// are detected from their magic bytes. Only directories and regular files are
// created; entries that would land outside destDir are rejected. It returns
// the number of files written.
func Extract(src, destDir string) (int, error) {
	f, err := os.Open(src)
	if err != nil {
		return 0, errs.Wrap(errs.Experiment, err, "failed to open bundle")
	}
	defer f.Close()

	br := bufio.NewReader(f)
	var r io.Reader = br
	if magic, err := br.Peek(len(gzipMagic)); err == nil && bytes.Equal(magic, gzipMagic) {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return 0, errs.Wrap(errs.Experiment, err, "failed to read gzip header")
		}
		defer zr.Close()
		r = zr
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return 0, errs.Wrap(errs.Experiment, err, "failed to create output directory")
	}
	root, err := filepath.Abs(destDir)
	if err != nil {
		return 0, errs.Wrap(errs.Experiment, err, "failed to resolve output directory")
	}

	files := 0
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return files, nil
		}
		if err != nil {
			return files, errs.Wrap(errs.Experiment, err, "failed to read bundle")
		}
		target, err := entryPath(root, hdr.Name)
		if err != nil {
			return files, err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return files, errs.Wrapf(errs.Experiment, err, "failed to create %s", hdr.Name)
			}
		case tar.TypeReg:
			if err := writeEntry(target, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return files, errs.Wrapf(errs.Experiment, err, "failed to extract %s", hdr.Name)
			}
			files++
		}
	}
}

func entryPath(root, name string) (string, error) {
	target := filepath.Join(root, filepath.FromSlash(name))
	if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
		return "", errs.New(errs.Experiment, "bundle entry %q escapes the output directory", name)
	}
	return target, nil
}

func writeEntry(target string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	if perm == 0 {
		perm = 0644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
