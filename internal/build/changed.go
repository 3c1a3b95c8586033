package build

import (
	"os"
)

// Changed is the change filter: it reports whether src needs processing
// because dest is missing or older than src.
func Changed(src, dest string) (bool, error) {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return false, err
	}
	destInfo, err := os.Stat(dest)
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return destInfo.ModTime().Before(srcInfo.ModTime()), nil
}
