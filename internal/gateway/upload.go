package gateway

import (
	"bytes"
	"errors"
	"io"
	"net/http"
)

// uploadField is the multipart field the chart UI posts the file under.
const uploadField = "file"

var errNoFile = errors.New("no file part")

// readUpload streams the multipart body and returns the first part named
// uploadField. The file is held in memory only.
func readUpload(w http.ResponseWriter, r *http.Request, limit int64) (string, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	mr, err := r.MultipartReader()
	if err != nil {
		return "", nil, errNoFile
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return "", nil, errNoFile
		}
		if err != nil {
			return "", nil, err
		}
		if part.FormName() != uploadField || part.FileName() == "" {
			part.Close()
			continue
		}
		defer part.Close()
		body, err := io.ReadAll(part)
		if err != nil {
			return "", nil, err
		}
		return part.FileName(), body, nil
	}
}

func bytesReader(b []byte) io.Reader { return bytes.NewReader(b) }
