package docapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"docfinder/internal/domain"
)

type uploadResponse struct {
	Message  string `json:"message"`
	Filename string `json:"filename,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Upload streams one file as multipart form data with the overwrite flag.
// Progress is reported as file bytes are handed to the transport.
func (c *Client) Upload(ctx context.Context, file domain.FileRef, overwrite bool, progress domain.ProgressFunc) domain.UploadOutcome {
	f, err := os.Open(file.Path)
	if err != nil {
		return transportOutcome(fmt.Errorf("open %s: %w", file.Path, err))
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return transportOutcome(fmt.Errorf("stat %s: %w", file.Path, err))
	}

	contentType := "application/octet-stream"
	if mt, err := mimetype.DetectFile(file.Path); err == nil {
		contentType = mt.String()
	}

	var body io.Reader = f
	if total := info.Size(); total > 0 && progress != nil {
		body = &progressReader{r: f, total: total, report: progress}
	}

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadForm(form, body, file.Name, contentType, overwrite))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(c.paths.Upload), pr)
	if err != nil {
		pr.Close()
		return transportOutcome(fmt.Errorf("build upload request: %w", err))
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return transportOutcome(err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportOutcome(err)
	}
	return c.classifyUpload(file.Name, resp.StatusCode, raw)
}

// classifyUpload maps a response onto success, duplicate conflict or failure.
// Success needs both a 200 and the success marker.
func (c *Client) classifyUpload(name string, status int, raw []byte) domain.UploadOutcome {
	var out uploadResponse
	decodeErr := json.Unmarshal(raw, &out)
	parsed := decodeErr == nil

	switch {
	case parsed && status == http.StatusOK && out.Message == c.successMarker:
		return domain.UploadOutcome{Kind: domain.UploadSucceeded, Message: out.Message}
	case parsed && strings.Contains(out.Error, c.duplicateMarker):
		return domain.UploadOutcome{
			Kind:    domain.UploadConflict,
			Message: out.Error,
			Err:     &ConflictError{Name: name, Detail: out.Error},
		}
	case parsed && out.Error != "":
		return domain.UploadOutcome{
			Kind:    domain.UploadFailed,
			Message: out.Error,
			Err:     &ServerError{Op: "upload", Status: status, Detail: out.Error},
		}
	case !parsed:
		return domain.UploadOutcome{
			Kind:    domain.UploadFailed,
			Message: http.StatusText(status),
			Err:     &MalformedResponseError{Op: "upload", Status: status, Raw: string(raw), Err: decodeErr},
		}
	default:
		se := &ServerError{Op: "upload", Status: status, Detail: out.Message}
		return domain.UploadOutcome{Kind: domain.UploadFailed, Message: se.Message(), Err: se}
	}
}

func writeUploadForm(form *multipart.Writer, content io.Reader, name, contentType string, overwrite bool) error {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(name)))
	header.Set("Content-Type", contentType)
	part, err := form.CreatePart(header)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, content); err != nil {
		return err
	}
	flag := "0"
	if overwrite {
		flag = "1"
	}
	if err := form.WriteField("overwrite", flag); err != nil {
		return err
	}
	return form.Close()
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string { return quoteEscaper.Replace(s) }

func transportOutcome(err error) domain.UploadOutcome {
	return domain.UploadOutcome{
		Kind:    domain.UploadTransportError,
		Message: err.Error(),
		Err:     &TransportError{Op: "upload", Err: err},
	}
}

// progressReader reports cumulative bytes read from the file.
type progressReader struct {
	r      io.Reader
	sent   int64
	total  int64
	report domain.ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		p.report(p.sent, p.total)
	}
	return n, err
}
