//go:build windows

package i18n

import "golang.org/x/sys/windows"

// platformLocales asks Windows for the user's UI languages, since the
// POSIX locale variables are usually unset there.
func platformLocales() []string {
	langs, err := windows.GetUserPreferredUILanguages(windows.MUI_LANGUAGE_NAME)
	if err == nil && len(langs) > 0 {
		return langs
	}
	if name, err := windows.GetUserDefaultLocaleName(); err == nil && name != "" {
		return []string{name}
	}
	return nil
}
