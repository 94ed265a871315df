package extract

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyrag/internal/domain"
)

// buildPDF writes a minimal PDF with one page per entry of pages.
func buildPDF(pages ...string) []byte {
	var objs []string
	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	objs = append(objs,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	)
	for i, text := range pages {
		stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		objs = append(objs,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f\r\n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n\r\n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func TestPagesPlainText(t *testing.T) {
	pages, err := Pages([]byte("Plain notes about cells."))
	require.NoError(t, err)
	assert.Equal(t, []string{"Plain notes about cells."}, pages)
}

func TestPagesRejectsUnsupported(t *testing.T) {
	_, err := Pages([]byte{0xff, 0xfe, 0x00, 0x81})
	assert.ErrorIs(t, err, domain.ErrUnsupportedDocument)

	_, err = Pages([]byte("   \n"))
	assert.ErrorIs(t, err, domain.ErrUnsupportedDocument)

	_, err = Pages([]byte("%PDF-1.4\nthis is not really a pdf"))
	assert.ErrorIs(t, err, domain.ErrUnsupportedDocument)
}

func TestPagesPDF(t *testing.T) {
	data := buildPDF("Cells are the unit of life", "Mitosis splits the nucleus")
	require.True(t, IsPDF(data))

	pages, err := Pages(data)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Contains(t, pages[0], "Cells are the unit of life")
	assert.Contains(t, pages[1], "Mitosis splits the nucleus")
}
