package sdk

import (
	"path"
	"strings"
)

type FileType string

const (
	FileTypeDirectory FileType = "directory"
	FileTypeText      FileType = "text"
	FileTypeConfig    FileType = "config"
	FileTypeImage     FileType = "image"
	FileTypeArchive   FileType = "archive"
	FileTypeAudio     FileType = "audio"
	FileTypeVideo     FileType = "video"
	FileTypeJar       FileType = "jar"
	FileTypeUnknown   FileType = "unknown"
)

var extensionTypes = map[string]FileType{
	".txt": FileTypeText, ".log": FileTypeText, ".md": FileTypeText, ".csv": FileTypeText,
	".sh": FileTypeText, ".bat": FileTypeText, ".cmd": FileTypeText, ".xml": FileTypeText,
	".html": FileTypeText, ".js": FileTypeText, ".py": FileTypeText, ".mcfunction": FileTypeText,

	".properties": FileTypeConfig, ".yml": FileTypeConfig, ".yaml": FileTypeConfig,
	".toml": FileTypeConfig, ".json": FileTypeConfig, ".json5": FileTypeConfig,
	".conf": FileTypeConfig, ".cfg": FileTypeConfig, ".ini": FileTypeConfig,

	".png": FileTypeImage, ".jpg": FileTypeImage, ".jpeg": FileTypeImage, ".gif": FileTypeImage,
	".bmp": FileTypeImage, ".webp": FileTypeImage, ".svg": FileTypeImage, ".ico": FileTypeImage,

	".zip": FileTypeArchive, ".tar": FileTypeArchive, ".gz": FileTypeArchive, ".tgz": FileTypeArchive,
	".bz2": FileTypeArchive, ".xz": FileTypeArchive, ".7z": FileTypeArchive, ".rar": FileTypeArchive,

	".mp3": FileTypeAudio, ".wav": FileTypeAudio, ".ogg": FileTypeAudio, ".flac": FileTypeAudio,
	".m4a": FileTypeAudio,

	".mp4": FileTypeVideo, ".mkv": FileTypeVideo, ".webm": FileTypeVideo, ".avi": FileTypeVideo,
	".mov": FileTypeVideo,

	".jar": FileTypeJar,
}

// FileTypeOf classifies a file by its extension.
func FileTypeOf(name string) FileType {
	if t, ok := extensionTypes[strings.ToLower(path.Ext(name))]; ok {
		return t
	}
	return FileTypeUnknown
}
