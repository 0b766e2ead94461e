package diff

import (
	"path/filepath"
	"strings"

	"github.com/diffsentry/pkg/models"
)

// languageByExtension maps file extensions to the language name used in
// review prompts. Extensions not listed here map to models.LanguageUnknown.
var languageByExtension = map[string]string{
	".go":    "go",
	".js":    "javascript",
	".jsx":   "javascript",
	".mjs":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".py":    "python",
	".rb":    "ruby",
	".java":  "java",
	".kt":    "kotlin",
	".scala": "scala",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".rs":    "rust",
	".php":   "php",
	".swift": "swift",
	".m":     "objective-c",
	".sh":    "shell",
	".bash":  "shell",
	".zsh":   "shell",
	".sql":   "sql",
	".html":  "html",
	".css":   "css",
	".scss":  "scss",
	".less":  "less",
	".json":  "json",
	".yaml":  "yaml",
	".yml":   "yaml",
	".toml":  "toml",
	".xml":   "xml",
	".md":    "markdown",
	".tf":    "terraform",
	".proto": "protobuf",
	".ex":    "elixir",
	".exs":   "elixir",
	".erl":   "erlang",
	".lua":   "lua",
	".r":     "r",
	".pl":    "perl",
	".dart":  "dart",
	".vue":   "vue",
}

// DetectLanguage maps a filename to its language. Files named Dockerfile or
// Makefile are special-cased since they have no extension.
func DetectLanguage(filename string) string {
	base := strings.ToLower(filepath.Base(filename))
	switch base {
	case "dockerfile":
		return "dockerfile"
	case "makefile":
		return "makefile"
	}

	if lang, ok := languageByExtension[strings.ToLower(filepath.Ext(filename))]; ok {
		return lang
	}
	return models.LanguageUnknown
}
