package registry

import "strings"

// NamespaceID applies the tool/prompt namespacing rule: the owning backend
// name is always stored alongside the entry, so nothing ever needs to parse
// this string back apart; the first "_" is not authoritative for lookups.
func NamespaceID(backendName, originalName string) string {
	return backendName + "_" + originalName
}

// NamespaceURI applies the resource URI-safe transform: replace any
// character outside [A-Za-z0-9._~-] with "_", collapse runs of "_", then
// prepend "backendName_". This is intentionally lossy; OriginalURI is
// always retained on the ResourceEntry.
//
// The collapse-runs-of-"_" rule means a run of N unsafe characters becomes
// one separator, not N: "file:///a.txt" becomes "fs_file_a.txt", not
// "fs_file___a.txt". Collapsing keeps namespaced URIs readable when a
// backend's scheme separator ("://") or repeated slashes would otherwise
// pile up underscores on every resource.
func NamespaceURI(backendName, originalURI string) string {
	var b strings.Builder
	b.Grow(len(originalURI))
	lastUnderscore := false
	for _, r := range originalURI {
		if isURISafe(r) {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return backendName + "_" + b.String()
}

func isURISafe(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z':
		return true
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '.' || r == '_' || r == '~' || r == '-':
		return true
	default:
		return false
	}
}

// NamespaceTemplateKey applies the resource-template namespacing rule.
func NamespaceTemplateKey(backendName, uriTemplate string) string {
	return backendName + "_" + uriTemplate
}
