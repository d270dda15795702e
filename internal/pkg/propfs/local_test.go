package propfs

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocalImplementsFileSystem(t *testing.T) {
	backend := LocalFileSystem{}
	var fileSystem FileSystem
	fileSystem = &backend

	assert.NotNil(t, fileSystem)
}

func TestLocalOpenReader(t *testing.T) {
	tmpdir := t.TempDir()
	path := filepath.Join(tmpdir, "tmpfile")
	ioutil.WriteFile(path, []byte("foo bar baz"), 0777)

	fs := LocalFileSystem{}

	reader, err := fs.OpenReader(path)
	assert.Nil(t, err)

	contents, err := ioutil.ReadAll(reader)
	assert.Nil(t, err)
	assert.Equal(t, []byte("foo bar baz"), contents)
	err = reader.Close()
	assert.Nil(t, err)
}

func TestLocalOpenReaderMissingFile(t *testing.T) {
	fs := LocalFileSystem{}

	_, err := fs.OpenReader(filepath.Join(t.TempDir(), "missing"))
	assert.NotNil(t, err)
}

func TestLocalStat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tmpfile")
	ioutil.WriteFile(path, []byte("foo"), 0777)

	fs := LocalFileSystem{}

	fInfo, err := fs.Stat(path)
	assert.Nil(t, err)

	assert.Equal(t, path, fInfo.Name)
	assert.Equal(t, int64(3), fInfo.Size)
}
