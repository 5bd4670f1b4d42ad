// internal/browser/shim/shim.go
package shim

import (
	"fmt"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// NamespacePlaceholder is replaced in templates with the quoted namespace name.
	NamespacePlaceholder = "/*{{VANI_NAMESPACE}}*/"
	DefaultNamespace     = "vani"
)

var identifier = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// Script is a page script together with the expression telling whether it is
// already installed.
type Script struct {
	Name   string
	Source string
	// Detect evaluates to true in a page that already has the script.
	Detect string
}

// ValidateNamespace checks that name can be used as a window property by the
// generated expressions.
func ValidateNamespace(name string) error {
	if !identifier.MatchString(name) {
		return fmt.Errorf("namespace %q is not a valid JavaScript identifier", name)
	}
	return nil
}

// BuildScript injects the namespace into a template.
func BuildScript(template, namespace string) (string, error) {
	if template == "" {
		return "", fmt.Errorf("template is empty")
	}
	if !strings.Contains(template, NamespacePlaceholder) {
		return "", fmt.Errorf("template does not contain the required placeholder: %s", NamespacePlaceholder)
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if err := ValidateNamespace(namespace); err != nil {
		return "", err
	}

	quoted, err := json.MarshalToString(namespace)
	if err != nil {
		return "", fmt.Errorf("failed to quote namespace: %w", err)
	}
	return strings.ReplaceAll(template, NamespacePlaceholder, quoted), nil
}

// LinkUtils returns the link helper script for namespace.
func LinkUtils(namespace string) (Script, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	template, err := GetVaniTemplate()
	if err != nil {
		return Script{}, err
	}
	source, err := BuildScript(template, namespace)
	if err != nil {
		return Script{}, err
	}
	return Script{
		Name:   "linkUtils",
		Source: source,
		Detect: fmt.Sprintf(`(typeof window.%[1]s === "object" && window.%[1]s !== null && typeof window.%[1]s.linkUtils === "object")`, namespace),
	}, nil
}

// HrefsExpression calls the installed link helper.
func HrefsExpression(namespace string) string {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return fmt.Sprintf("window.%s.linkUtils.hrefs()", namespace)
}
