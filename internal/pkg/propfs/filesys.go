package propfs

import (
	"fmt"
	"io"
	"strings"
)

// FileSystemType is an identifier for supported FileSystems
type FileSystemType int

// Identifiers for supported FileSystemTypes
const (
	Local FileSystemType = iota
	S3
)

const s3Scheme = "s3://"

// FileSystem provides read access to aggregation inputs.
// This is abstracted to allow remote filesystems like S3 to be supported.
type FileSystem interface {
	Stat(filePath string) (FileInfo, error)
	OpenReader(filePath string) (io.ReadCloser, error)
	Init() error
}

// FileInfo provides information about a file
type FileInfo struct {
	Name string // file path
	Size int64  // file size in bytes
}

// InitFilesystem intializes a filesystem of the given type
func InitFilesystem(fsType FileSystemType) (FileSystem, error) {
	var fs FileSystem
	switch fsType {
	case S3:
		fs = &S3FileSystem{}
	default:
		fs = &LocalFileSystem{}
	}

	if err := fs.Init(); err != nil {
		return nil, fmt.Errorf("initializing filesystem: %w", err)
	}
	return fs, nil
}

// InferFilesystemType returns the FileSystemType that serves location
func InferFilesystemType(location string) FileSystemType {
	if strings.HasPrefix(location, s3Scheme) {
		return S3
	}
	return Local
}

// InferFilesystem initializes a filesystem by inferring its type from
// a file address.
// For example, locations starting with "s3://" will resolve to an S3
// filesystem.
func InferFilesystem(location string) (FileSystem, error) {
	return InitFilesystem(InferFilesystemType(location))
}
