// pkuhole/utils/utils.go
package utils

import (
	"os"
	"strconv"
)

// BtoI converts a boolean to an integer (1 for true, 0 for false).
func BtoI(b bool) int {
	if b {
		return 1
	}
	return 0
}

// BtoS converts a boolean to the "1"/"0" form the remote API expects.
func BtoS(b bool) string {
	return strconv.Itoa(BtoI(b))
}

// ReadLimitedFile reads a file, refusing anything larger than max bytes.
func ReadLimitedFile(path string, max int64) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > max {
		return nil, &FileTooLargeError{Path: path, Size: info.Size(), Max: max}
	}
	return os.ReadFile(path)
}

// FileTooLargeError is returned by ReadLimitedFile.
type FileTooLargeError struct {
	Path      string
	Size, Max int64
}

func (e *FileTooLargeError) Error() string {
	return "file " + e.Path + " is " + strconv.FormatInt(e.Size, 10) +
		" bytes, limit is " + strconv.FormatInt(e.Max, 10)
}
