package propfs

import (
	"io"
	"os"
)

// LocalFileSystem reads inputs from the local disk.
type LocalFileSystem struct{}

func (l *LocalFileSystem) OpenReader(filePath string) (io.ReadCloser, error) {
	return os.OpenFile(filePath, os.O_RDONLY, 0600)
}

func (l *LocalFileSystem) Stat(filePath string) (FileInfo, error) {
	fInfo, err := os.Stat(filePath)
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{
		Name: filePath,
		Size: fInfo.Size(),
	}, nil
}

func (l *LocalFileSystem) Init() error {
	return nil
}
