package main

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-pdf/fpdf"
)

// buildReceiptPDF renders the registration receipt. titles maps item ids to
// catalog titles; ids missing from it are printed as "#id".
func buildReceiptPDF(s Submission, titles map[int]string) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Ecoleta - comprovante "+s.PublicID, true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, tr("Comprovante de cadastro de ponto de coleta"))
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Protocolo: %s", s.PublicID))
	pdf.Ln(6)
	if s.CreatedAt != "" {
		pdf.Cell(0, 6, tr("Data: "+formatReceiptTimestamp(s.CreatedAt)))
		pdf.Ln(6)
	}
	if s.BackendPointID != nil {
		pdf.Cell(0, 6, fmt.Sprintf("Ponto: #%d", *s.BackendPointID))
		pdf.Ln(6)
	}
	pdf.Ln(4)

	rows := [][2]string{
		{"Entidade", s.Payload.Name},
		{"E-mail", s.Payload.Email},
		{"Whatsapp", s.Payload.Whatsapp},
		{"Cidade", s.Payload.City + " - " + s.Payload.UF},
		{"Coordenadas", fmt.Sprintf("%.6f, %.6f", s.Payload.Latitude, s.Payload.Longitude)},
	}
	for _, row := range rows {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(35, 7, tr(row[0]), "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(0, 7, tr(row[1]), "", 1, "L", false, 0, "")
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.Cell(0, 8, tr("Ítens de coleta"))
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 10)
	for _, id := range s.Payload.Items {
		label, ok := titles[id]
		if !ok {
			label = "#" + strconv.Itoa(id)
		}
		pdf.Cell(0, 6, tr("- "+label))
		pdf.Ln(6)
	}

	buffer := bytes.NewBuffer(nil)
	if err := pdf.Output(buffer); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func (a *App) receiptHandler(c *gin.Context) {
	submission, err := a.submissionByPublicID(c.Request.Context(), c.Param("public_id"))
	if err != nil {
		writeAPIError(c, err)
		return
	}

	titles := map[int]string{}
	if items, err := a.backend.Items(c.Request.Context()); err != nil {
		a.log.Warn("receipt rendered without item titles", "public_id", submission.PublicID, "err", err)
	} else {
		for _, item := range items {
			titles[item.ID] = item.Title
		}
	}

	pdf, err := buildReceiptPDF(*submission, titles)
	if err != nil {
		writeAPIError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="ecoleta-%s.pdf"`, submission.PublicID))
	c.Data(http.StatusOK, "application/pdf", pdf)
}
