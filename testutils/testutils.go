// package testutils contains test helpers: a mock verifier and proof file
// fixtures
package testutils

import (
	"fmt"
	"os"
	"path/filepath"
)

// MinimalProof is a structured proof artifact the mock verifier accepts
const MinimalProof = `{ "leaf": "0xabc", "path": ["0x1","0x2"] }`

// WriteProofFile writes content to dir/name, creating dir if needed, and
// returns the file path
func WriteProofFile(dir string, name string, content string) (string, error) {
	if err := CreateDirectoryIfNeeded(dir); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("error writing proof file: %v", err)
	}
	return path, nil
}

func CreateDirectoryIfNeeded(dir string) error {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		err = os.MkdirAll(dir, 0755)
		if err != nil {
			return fmt.Errorf("error creating folder: %v", err)
		}
	} else if err != nil {
		return fmt.Errorf("error accessing %s: %v", dir, err)
	} else if !info.IsDir() {
		return fmt.Errorf("file %s exists but is not a directory", dir)
	}
	return nil
}
