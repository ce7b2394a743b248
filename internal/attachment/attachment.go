// Package attachment loads files from disk for attaching to outbound messages.
package attachment

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/shineum/email-sender/internal/email"
)

// DefaultContentType is used when no better type can be inferred.
const DefaultContentType = "application/octet-stream"

// encodingExts are compression suffixes. A file carrying one is sent as
// opaque binary regardless of the type of the inner content.
var encodingExts = map[string]struct{}{
	".gz":  {},
	".z":   {},
	".bz2": {},
	".xz":  {},
	".br":  {},
	".zst": {},
}

// ContentType infers a media type from a file name.
func ContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return DefaultContentType
	}
	if _, ok := encodingExts[ext]; ok {
		return DefaultContentType
	}

	typ := mime.TypeByExtension(ext)
	if typ == "" {
		return DefaultContentType
	}

	mediaType, _, err := mime.ParseMediaType(typ)
	if err != nil || !strings.Contains(mediaType, "/") {
		return DefaultContentType
	}
	return mediaType
}

// Load reads the file at path and returns it as an attachment. It fails with
// email.ErrAttachmentNotFound when path is not a readable regular file.
func Load(path string) (email.AttachmentRef, error) {
	info, err := os.Stat(path)
	if err != nil {
		return email.AttachmentRef{}, notFound(path, err)
	}
	if !info.Mode().IsRegular() {
		return email.AttachmentRef{}, notFound(path, fmt.Errorf("not a regular file"))
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return email.AttachmentRef{}, notFound(path, err)
	}

	mainType, subType, _ := strings.Cut(ContentType(path), "/")

	return email.AttachmentRef{
		Path:     path,
		MainType: mainType,
		SubType:  subType,
		Filename: filepath.Base(path),
		Content:  content,
	}, nil
}

// LoadAll loads each path in order and stops at the first failure.
func LoadAll(paths []string) ([]email.AttachmentRef, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	refs := make([]email.AttachmentRef, 0, len(paths))
	for _, p := range paths {
		ref, err := Load(p)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func notFound(path string, cause error) error {
	return &email.FieldError{
		Field: "attachments",
		Err:   fmt.Errorf("%w: %s: %v", email.ErrAttachmentNotFound, path, cause),
	}
}
