// Package fs holds some utilities for manipulating the file system
package fs

import (
	"os"
	"path"
)

const defaultDirectoryPermission = 0740

// CreateSecureFolder creates the folder with restrictive permissions if it
// does not exist yet and returns its path.
func CreateSecureFolder(folder string) (string, error) {
	if exists, err := Exists(folder); err != nil {
		return "", err
	} else if !exists {
		if err := os.MkdirAll(folder, defaultDirectoryPermission); err != nil {
			return "", err
		}
	}
	return folder, nil
}

// Exists returns whether the given file or directory exists.
func Exists(filePath string) (bool, error) {
	_, err := os.Stat(filePath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return true, err
}

// CreateSecureFile creates a file with rw permission for the user only and
// returns the file handle.
func CreateSecureFile(file string) (*os.File, error) {
	fd, err := os.Create(file)
	if err != nil {
		return nil, err
	}
	fd.Close()
	if err := os.Chmod(file, 0600); err != nil {
		return nil, err
	}
	return os.OpenFile(file, os.O_RDWR, 0600)
}

// FileExists returns true if the given name is a file in the given path.
func FileExists(folderPath, name string) bool {
	exists, _ := Exists(path.Join(folderPath, name))
	return exists
}
