package router

import (
	"fmt"

	"github.com/spf13/afero"
)

// ReadHTMLFile loads a page from fs and strips every CR and LF byte so
// the page takes less room in the response buffer.
func ReadHTMLFile(fs afero.Fs, name string) (string, error) {
	raw, err := afero.ReadFile(fs, name)
	if err != nil {
		return "", fmt.Errorf("read homepage %s: %w", name, err)
	}

	mini := raw[:0]
	for _, b := range raw {
		if b != '\r' && b != '\n' {
			mini = append(mini, b)
		}
	}
	return string(mini), nil
}
