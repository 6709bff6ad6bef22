package restyutil

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"scrapeflow/lib/har"
	"strings"
)

// FilesystemOutput writes each captured exchange as a readable text file
// named after its message id.
type FilesystemOutput struct {
	directory string
}

// NewFilesystemOutput clears `dir` and prepares it for capture files.
func NewFilesystemOutput(dir string) (FilesystemOutput, error) {
	err := os.RemoveAll(dir)
	if err != nil {
		return FilesystemOutput{}, err
	}
	err = os.MkdirAll(dir, 0777)
	if err != nil {
		return FilesystemOutput{}, err
	}
	return FilesystemOutput{directory: dir}, nil
}

func (o FilesystemOutput) Write(id string, entry har.Entry) {
	err := os.WriteFile(filepath.Join(o.directory, id), []byte(FormatEntry(entry)), 0600)
	if err != nil {
		slog.Warn("failed to write message info file", "id", id, "err", err)
	}
}

func formatHeaders(headers har.Headers) string {
	var out strings.Builder
	for _, h := range headers {
		out.WriteString(fmt.Sprintf("%s: %s\n", h.Name, h.Value))
	}
	// to trim the last newline off the end of the headers
	return strings.TrimSuffix(out.String(), "\n")
}

// 1: request method
// 2: request url
// 3: request headers in ("Key: Value" format)
// 4: request body
// 5: response status
// 6: response url
// 7: response headers in ("Key: Value" format)
// 8: response body
const messageInfoTemplate = `---- REQUEST ----

%s %s

%s

%s

---- RESPONSE ----

%s %s

%s

%s`

// FormatEntry renders an entry the way it went over the wire.
func FormatEntry(entry har.Entry) string {
	requestBody := ""
	if entry.Request.PostData != nil {
		requestBody = entry.Request.PostData.Text
	}

	responseUrl := entry.Request.URL
	if entry.Response.RedirectURL != "" {
		responseUrl = entry.Response.RedirectURL
	}

	status := fmt.Sprint(entry.Response.Status)
	responseBody := entry.Response.Content.Text
	if entry.Response.Error != nil {
		status = "ERROR"
		responseBody = *entry.Response.Error
	}

	return fmt.Sprintf(
		messageInfoTemplate,

		entry.Request.Method, entry.Request.URL,
		formatHeaders(entry.Request.Headers),
		requestBody,

		status, responseUrl,
		formatHeaders(entry.Response.Headers),
		responseBody,
	)
}
