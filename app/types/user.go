package types

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
)

const MaxAvatarSize = 5 << 20

var (
	ErrAvatarMissing     = errors.New("file is required")
	ErrAvatarTooLarge    = fmt.Errorf("file exceeds %d bytes", MaxAvatarSize)
	ErrAvatarContentType = errors.New("only JPEG, PNG, GIF and WebP images are accepted")
)

var avatarContentTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/gif":  {},
	"image/webp": {},
}

type AvatarUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// NewAvatarUploadFromContext reads the multipart "file" field. The content
// type is sniffed from the bytes; the client-supplied header is ignored.
func NewAvatarUploadFromContext(ctx echo.Context) (*AvatarUpload, error) {
	header, err := ctx.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, ErrAvatarMissing
		}
		return nil, err
	}

	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxAvatarSize+1))
	if err != nil {
		return nil, err
	}

	return &AvatarUpload{
		Filename:    header.Filename,
		ContentType: http.DetectContentType(data),
		Data:        data,
	}, nil
}

func (u *AvatarUpload) Validate() error {
	if len(u.Data) == 0 {
		return ErrAvatarMissing
	}
	if len(u.Data) > MaxAvatarSize {
		return ErrAvatarTooLarge
	}
	if _, ok := avatarContentTypes[u.ContentType]; !ok {
		return ErrAvatarContentType
	}
	return nil
}
