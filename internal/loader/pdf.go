package loader

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"pdfchat/internal/domain"
)

// PDFLoader reads PDF files into ordered per-page text records.
type PDFLoader struct {
	log *zap.Logger
}

func NewPDFLoader(log *zap.Logger) *PDFLoader {
	if log == nil {
		log = zap.NewNop()
	}
	return &PDFLoader{log: log}
}

// Load extracts every page of every file, preserving file order then page
// order. Any unreadable or non-PDF file aborts the whole batch; there is no
// partial result.
func (l *PDFLoader) Load(paths []string) ([]domain.Page, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no files to load")
	}
	var pages []domain.Page
	for _, path := range paths {
		if !strings.EqualFold(filepath.Ext(path), ".pdf") {
			return nil, fmt.Errorf("%s: unsupported file extension", path)
		}
		filePages, err := l.loadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		pages = append(pages, filePages...)
	}
	return pages, nil
}

func (l *PDFLoader) loadFile(path string) ([]domain.Page, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fileID := filepath.Base(path)
	total := r.NumPage()
	pages := make([]domain.Page, 0, total)
	for i := 1; i <= total; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, domain.Page{FileID: fileID, Number: i - 1})
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, domain.Page{FileID: fileID, Number: i - 1, Text: text})
	}
	l.log.Info("loaded pdf", zap.String("file", fileID), zap.Int("pages", total))
	return pages, nil
}
