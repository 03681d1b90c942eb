package rest

import (
	"errors"
	"net/http"
	"os"

	"github.com/dmitrijs2005/gophaccounts/internal/common"
	"github.com/dmitrijs2005/gophaccounts/internal/server/accounts"
	"github.com/gin-gonic/gin"
)

const avatarField = "avatar"

var errUploadTooLarge = errors.New("upload too large")

// avatarUpload spools the avatar form file into the temp store. The cleanup
// func closes and removes the spooled file and is safe to call when no
// avatar was sent.
func (s *Server) avatarUpload(c *gin.Context) (*accounts.Upload, func(), error) {
	noop := func() {}

	fh, err := c.FormFile(avatarField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, noop, nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, noop, errUploadTooLarge
		}
		return nil, noop, common.Collaborator("read upload", err)
	}

	src, err := fh.Open()
	if err != nil {
		return nil, noop, common.Collaborator("read upload", err)
	}
	path, err := s.uploads.Save(src)
	src.Close()
	if err != nil {
		return nil, noop, common.Collaborator("store upload", err)
	}

	f, err := os.Open(path)
	if err != nil {
		s.removeUpload(c, path)
		return nil, noop, common.Collaborator("store upload", err)
	}

	cleanup := func() {
		f.Close()
		s.removeUpload(c, path)
	}

	return &accounts.Upload{Body: f, ContentType: fh.Header.Get("Content-Type")}, cleanup, nil
}

func (s *Server) removeUpload(c *gin.Context, path string) {
	if err := s.uploads.Remove(path); err != nil {
		s.logger.Warn(c.Request.Context(), "temp upload not removed", "path", path, "error", err)
	}
}
