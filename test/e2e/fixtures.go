package e2e

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// EncodeDocument renders d in the format named by its extension. Markdown gets
// front-matter and a heading; binary formats carry the content as one paragraph or cell.
func EncodeDocument(d SiteDocument) ([]byte, error) {
	switch filepath.Ext(d.Path) {
	case ".md":
		return []byte(fmt.Sprintf("---\ntitle: %s\n---\n# %s\n\n%s\n", d.Title, d.Title, d.Content)), nil
	case ".docx":
		return minimalDocx(d.Content)
	case ".xlsx":
		return minimalXlsx(d.Content)
	default:
		return []byte(d.Content + "\n"), nil
	}
}

func minimalDocx(text string) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, err := w.Create("word/document.xml")
	if err != nil {
		return nil, err
	}
	_, err = fw.Write([]byte(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>` +
		html.EscapeString(text) + `</w:t></w:r></w:p></w:body></w:document>`))
	if err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func minimalXlsx(text string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetCellValue("Sheet1", "A1", text); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
