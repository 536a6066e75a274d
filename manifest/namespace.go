package manifest

import (
	"strings"

	"github.com/chazu/mender/loader"
)

// SupportNamespace holds the runtime support types of enhanced classes.
const SupportNamespace = "Mender"

// ToPascalCase converts a string to PascalCase.
// "my-app" -> "MyApp", "models" -> "Models", "myApp" -> "MyApp"
func ToPascalCase(s string) string {
	var words []string
	current := ""
	for i, r := range s {
		if r == '-' || r == '_' {
			if current != "" {
				words = append(words, current)
				current = ""
			}
			continue
		}
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := rune(s[i-1])
			if prev >= 'a' && prev <= 'z' {
				words = append(words, current)
				current = ""
			}
		}
		current += string(r)
	}
	if current != "" {
		words = append(words, current)
	}

	var result string
	for _, w := range words {
		if w == "" {
			continue
		}
		result += strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return result
}

// IsReservedNamespace reports whether the root segment of name is a core
// class or the support namespace. "Shop::Array" is fine because the root
// is "Shop".
func IsReservedNamespace(name string) bool {
	root := name
	if idx := strings.Index(name, "::"); idx >= 0 {
		root = name[:idx]
	}
	return root == SupportNamespace || loader.IsCoreClass(root)
}
