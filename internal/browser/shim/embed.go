// internal/browser/shim/embed.go
package shim

import (
	_ "embed"
	"fmt"
)

//go:embed vani.js
var vaniTemplate string

// GetVaniTemplate returns the embedded vani.js template.
func GetVaniTemplate() (string, error) {
	if vaniTemplate == "" {
		return "", fmt.Errorf("embedded vani.js template is empty or failed to load")
	}
	return vaniTemplate, nil
}
