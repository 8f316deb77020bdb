//go:build !windows

package i18n

// Elsewhere the locale comes from the environment.
func platformLocales() []string { return nil }
