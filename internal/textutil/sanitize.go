package textutil

import (
	"path"
	"strings"
	"unicode"
)

// maxFileNameRunes caps forwarded upload names.
const maxFileNameRunes = 64

// fileNameReplacer replaces characters that are unsafe in multipart
// filenames with dashes or removes them.
var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
)

// SanitizeFileName reduces a client-supplied upload name to a safe base
// name. Directory components and control characters are dropped and the
// result is capped in length while keeping the extension. It returns
// fallback when nothing usable remains.
func SanitizeFileName(name, fallback string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	name = path.Base(name)
	if name == "." || name == "/" {
		return fallback
	}
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.Trim(strings.TrimSpace(fileNameReplacer.Replace(name)), ".")
	if name == "" {
		return fallback
	}

	runes := []rune(name)
	if len(runes) <= maxFileNameRunes {
		return name
	}
	ext := []rune(path.Ext(name))
	if len(ext) >= maxFileNameRunes/2 {
		ext = nil
	}
	return string(runes[:maxFileNameRunes-len(ext)]) + string(ext)
}
