package extract

import (
	"bytes"

	"github.com/ledongthuc/pdf"
)

// PageCount reports the number of pages when content is a PDF, and 0 for
// anything else. It never fails the calling flow; malformed PDFs count as 0.
func PageCount(content []byte) int {
	if !bytes.HasPrefix(content, []byte("%PDF-")) {
		return 0
	}
	defer func() {
		_ = recover()
	}()
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return 0
	}
	return reader.NumPage()
}
