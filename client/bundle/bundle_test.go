package bundle

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"

	"github.com/coreperf-io/coreperf/client/errs"
)

type tarFile struct {
	name string
	body string
	dir  bool
}

func writeTar(t *testing.T, w io.Writer, files []tarFile) {
	t.Helper()
	tw := tar.NewWriter(w)
	for _, f := range files {
		hdr := &tar.Header{Name: f.name, Mode: 0644, Size: int64(len(f.body)), Typeflag: tar.TypeReg}
		if f.dir {
			hdr = &tar.Header{Name: f.name, Mode: 0755, Typeflag: tar.TypeDir}
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if !f.dir {
			_, err := tw.Write([]byte(f.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
}

func readTar(t *testing.T, path string) map[string]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	contents := map[string]string{}
	var order []string
	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		body, err := io.ReadAll(tr)
		require.NoError(t, err)
		contents[hdr.Name] = string(body)
		order = append(order, hdr.Name)
	}
	require.Equal(t, ConfigName, order[0])
	return contents
}

// Ensure the package holds the config followed by every workload.
func TestBuild(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.elf")
	b := filepath.Join(dir, "b.elf")
	require.NoError(t, os.WriteFile(a, []byte("elf-a"), 0755))
	require.NoError(t, os.WriteFile(b, []byte("elf-b"), 0755))

	dest := filepath.Join(dir, "workload.exp")
	err := Build(dest, []byte(`{"core":"x"}`), []Entry{
		{Path: a, ArchiveName: "a.elf"},
		{Path: b, ArchiveName: "b_1.elf"},
	})
	require.NoError(t, err)

	contents := readTar(t, dest)
	require.Equal(t, map[string]string{
		ConfigName: `{"core":"x"}`,
		"a.elf":    "elf-a",
		"b_1.elf":  "elf-b",
	}, contents)
}

// Ensure a workload deleted before packaging is an experiment error.
func TestBuildMissingWorkload(t *testing.T) {
	dir := t.TempDir()
	err := Build(filepath.Join(dir, "workload.exp"), []byte("{}"), []Entry{
		{Path: filepath.Join(dir, "gone.elf"), ArchiveName: "gone.elf"},
	})
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.Experiment))
	require.Contains(t, err.Error(), "no longer exists")
}

// Ensure plain tar archives are extracted.
func TestExtractTar(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "results.tar.gz")
	var buf bytes.Buffer
	writeTar(t, &buf, []tarFile{
		{name: "reports/", dir: true},
		{name: "reports/summary.json", body: `{"cycles":1}`},
		{name: "reports/core/a_roi_1.json", body: `{}`},
	})
	require.NoError(t, os.WriteFile(src, buf.Bytes(), 0644))

	out := filepath.Join(dir, "results")
	n, err := Extract(src, out)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	data, err := os.ReadFile(filepath.Join(out, "reports", "summary.json"))
	require.NoError(t, err)
	require.Equal(t, `{"cycles":1}`, string(data))
	require.FileExists(t, filepath.Join(out, "reports", "core", "a_roi_1.json"))
}

// Ensure gzip compressed archives are detected and extracted.
func TestExtractGzip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "results.tar.gz")

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	writeTar(t, zw, []tarFile{{name: "reports/summary.json", body: "gz"}})
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(src, buf.Bytes(), 0644))

	out := filepath.Join(dir, "results")
	n, err := Extract(src, out)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	data, err := os.ReadFile(filepath.Join(out, "reports", "summary.json"))
	require.NoError(t, err)
	require.Equal(t, "gz", string(data))
}

// Ensure entries escaping the output directory are rejected.
func TestExtractRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "evil.tar")
	var buf bytes.Buffer
	writeTar(t, &buf, []tarFile{{name: "../escaped.json", body: "x"}})
	require.NoError(t, os.WriteFile(src, buf.Bytes(), 0644))

	_, err := Extract(src, filepath.Join(dir, "out"))
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.Experiment))
	require.NoFileExists(t, filepath.Join(dir, "escaped.json"))
}

// Ensure garbage input is reported as an experiment error.
func TestExtractCorrupt(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "bad.tar")
	require.NoError(t, os.WriteFile(src, bytes.Repeat([]byte{0x42}, 1024), 0644))

	_, err := Extract(src, filepath.Join(dir, "out"))
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.Experiment))
}

// Ensure the round trip through Build and Extract preserves the workloads.
func TestBuildExtractRoundTrip(t *testing.T) {
	dir := t.TempDir()
	elf := filepath.Join(dir, "bench.elf")
	require.NoError(t, os.WriteFile(elf, []byte("\x7fELF..."), 0755))

	pkg := filepath.Join(dir, "workload.exp")
	require.NoError(t, Build(pkg, []byte(`{}`), []Entry{{Path: elf, ArchiveName: "bench.elf"}}))

	out := filepath.Join(dir, "unpacked")
	n, err := Extract(pkg, out)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	info, err := os.Stat(filepath.Join(out, "bench.elf"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0755), info.Mode().Perm())
}
