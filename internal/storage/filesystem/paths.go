package filesystem

import (
	"fmt"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
)

var (
	invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	reservedNames        = map[string]bool{
		"CON": true, "PRN": true, "AUX": true, "NUL": true,
		"COM1": true, "COM2": true, "COM3": true, "COM4": true,
		"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true,
	}
)

const maxFilenameLength = 200

// SanitizeFilename 将附件名等不可信名称转换为可安全落盘的文件名
//
// 去掉路径部分和非法字符，处理 Windows 保留名，并限制长度；结果为空时返回 fallback。
func SanitizeFilename(name, fallback string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}

	name = invalidFilenameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, " .")

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if reservedNames[strings.ToUpper(base)] {
		base += "_"
	}
	name = base + ext

	if len(name) > maxFilenameLength {
		if len(ext) >= maxFilenameLength {
			ext = ""
		}
		name = name[:maxFilenameLength-len(ext)] + ext
	}

	if name == "" || strings.Trim(name, "_") == "" {
		return fallback
	}
	return name
}

// ValidatePath 校验状态文件路径
func ValidatePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("path must not be empty")
	}
	if strings.ContainsRune(path, 0) {
		return fmt.Errorf("path contains NUL byte")
	}
	if runtime.GOOS == "windows" && len(path) > 260 && !strings.HasPrefix(path, `\\?\`) {
		return fmt.Errorf("path too long for windows: %d characters", len(path))
	}
	return nil
}

// NormalizePath 清理路径并转换为绝对路径，失败时返回清理后的原路径
func NormalizePath(path string) string {
	cleaned := filepath.Clean(path)
	if abs, err := filepath.Abs(cleaned); err == nil {
		return abs
	}
	return cleaned
}
