package security

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"path/filepath"
	"strings"
)

// ErrAttachmentTooLarge 附件超过本地转发上限
var ErrAttachmentTooLarge = errors.New("attachment exceeds size limit")

// DefaultMaxAttachmentSize 本地转发附件的默认上限
const DefaultMaxAttachmentSize = 25 * 1024 * 1024

// Verdict 附件检查结果
type Verdict struct {
	Dangerous   bool   // 可执行文件或脚本，只允许作为下载保存
	Reason      string // Dangerous 为 true 时的原因
	ContentType string // 实际返回给浏览器的类型
	Inline      bool   // 是否允许浏览器内联展示
}

// AttachmentSecurity 附件安全检查器
type AttachmentSecurity struct {
	// 允许内联展示的类型
	inlineMimeTypes map[string]bool

	// 最大文件大小（字节）
	maxFileSize int64

	// 危险文件扩展名
	dangerousExtensions map[string]bool
}

// NewAttachmentSecurity 创建附件安全检查器，maxFileSize <= 0 时使用默认上限
func NewAttachmentSecurity(maxFileSize int64) *AttachmentSecurity {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxAttachmentSize
	}
	return &AttachmentSecurity{
		inlineMimeTypes: map[string]bool{
			"text/plain":      true,
			"application/pdf": true,
			"image/jpeg":      true,
			"image/png":       true,
			"image/gif":       true,
			"image/webp":      true,
		},
		maxFileSize: maxFileSize,
		dangerousExtensions: map[string]bool{
			".exe": true,
			".bat": true,
			".cmd": true,
			".scr": true,
			".pif": true,
			".com": true,
			".vbs": true,
			".js":  true,
			".jar": true,
			".msi": true,
			".ps1": true,
			".sh":  true,
		},
	}
}

// MaxFileSize 返回附件大小上限
func (as *AttachmentSecurity) MaxFileSize() int64 {
	return as.maxFileSize
}

// LimitWriter 包装 w，写入超过上限时返回 ErrAttachmentTooLarge
func (as *AttachmentSecurity) LimitWriter(w io.Writer) io.Writer {
	return &limitWriter{w: w, remaining: as.maxFileSize}
}

type limitWriter struct {
	w         io.Writer
	remaining int64
}

func (l *limitWriter) Write(p []byte) (int, error) {
	if int64(len(p)) > l.remaining {
		return 0, ErrAttachmentTooLarge
	}
	n, err := l.w.Write(p)
	l.remaining -= int64(n)
	return n, err
}

// Inspect 根据文件名、声明的类型和内容头部决定如何返回附件
func (as *AttachmentSecurity) Inspect(filename, mimeType string, content []byte) Verdict {
	v := Verdict{ContentType: "application/octet-stream"}

	if dangerous, reason := as.checkFileExtension(filename); dangerous {
		v.Dangerous, v.Reason = true, reason
		return v
	}
	if malicious, reason := as.checkFileMagic(content); malicious {
		v.Dangerous, v.Reason = true, reason
		return v
	}

	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return v
	}
	if strings.HasPrefix(mediaType, "text/") {
		if malicious, reason := as.checkTextContent(content); malicious {
			v.Dangerous, v.Reason = true, reason
			return v
		}
	}

	v.ContentType = mimeType
	v.Inline = as.inlineMimeTypes[mediaType]
	return v
}

// checkFileExtension 检查文件扩展名
func (as *AttachmentSecurity) checkFileExtension(filename string) (bool, string) {
	ext := strings.ToLower(filepath.Ext(filename))

	if as.dangerousExtensions[ext] {
		return true, "dangerous file extension: " + ext
	}

	return false, ""
}

// checkFileMagic 检查文件魔数
func (as *AttachmentSecurity) checkFileMagic(header []byte) (bool, string) {
	executableSignatures := [][]byte{
		{0x4D, 0x5A},             // PE executable
		{0x7F, 0x45, 0x4C, 0x46}, // ELF executable
		{0xFE, 0xED, 0xFA, 0xCE}, // Mach-O executable
		{0xCE, 0xFA, 0xED, 0xFE}, // Mach-O executable (reverse)
	}

	for _, sig := range executableSignatures {
		if bytes.HasPrefix(header, sig) {
			return true, "executable file detected"
		}
	}

	return false, ""
}

// checkTextContent 检查文本内容头部
func (as *AttachmentSecurity) checkTextContent(content []byte) (bool, string) {
	if len(content) > 512 {
		content = content[:512]
	}
	lower := strings.ToLower(string(content))

	if strings.Contains(lower, "<script") {
		return true, "script tag detected in text file"
	}
	if strings.Contains(lower, "javascript:") {
		return true, "javascript code detected in text file"
	}

	return false, ""
}
