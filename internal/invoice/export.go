package invoice

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Facturas"

var exportHeaders = []string{
	"ID",
	"Fecha",
	"Proveedor",
	"Monto",
	"Método de Pago",
	"Categoría",
	"Estado",
	"NIT",
	"Factura N°",
	"Descripción",
	"Confianza OCR",
	"Fecha de Registro",
}

// writeWorkbook renders invoices as one row each under a bold header row
func writeWorkbook(invoices []*Invoice) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("creating header style: %w", err)
	}
	// Built-in format 4 is #,##0.00
	amountStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return nil, fmt.Errorf("creating amount style: %w", err)
	}

	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(exportSheet, cell, h); err != nil {
			return nil, err
		}
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(exportHeaders), 1)
	if err := f.SetCellStyle(exportSheet, "A1", lastHeader, headerStyle); err != nil {
		return nil, err
	}

	for i, inv := range invoices {
		row := i + 2
		values := []any{
			inv.ID,
			inv.Date.Format("2006-01-02"),
			inv.Provider,
			inv.Amount.InexactFloat64(),
			inv.PaymentMethod,
			string(inv.Category),
			string(inv.Status),
			inv.TaxID,
			inv.InvoiceNumber,
			inv.Description,
			inv.OCRConfidence,
			inv.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(exportSheet, cell, v); err != nil {
				return nil, err
			}
		}
		amountCell, _ := excelize.CoordinatesToCellName(4, row)
		if err := f.SetCellStyle(exportSheet, amountCell, amountCell, amountStyle); err != nil {
			return nil, err
		}
	}

	_ = f.SetColWidth(exportSheet, "A", "A", 38) // id
	_ = f.SetColWidth(exportSheet, "B", "B", 12) // date
	_ = f.SetColWidth(exportSheet, "C", "C", 30) // provider
	_ = f.SetColWidth(exportSheet, "D", "D", 14) // amount
	_ = f.SetColWidth(exportSheet, "J", "J", 48) // description
	_ = f.SetColWidth(exportSheet, "L", "L", 20) // created

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}
