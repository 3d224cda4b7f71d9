package walletgo

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/go-pdf/fpdf"
)

// Reporter is the downstream export collaborator: it renders read-only
// ledger views for admins and never mutates anything. It consumes the
// Service query surface exactly as any external formatter would.
type Reporter struct {
	svc Service
}

func NewReporter(svc Service) *Reporter {
	return &Reporter{svc: svc}
}

// CSVStatement writes the filtered ledger as CSV.
func (r *Reporter) CSVStatement(ctx context.Context, w io.Writer, filter TxnFilter) error {
	txns, err := r.svc.Transactions(ctx, filter)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err = cw.Write([]string{"id", "payer", "payee", "amount", "timestamp", "status"}); err != nil {
		return err
	}
	for _, txn := range txns {
		rec := []string{
			strconv.FormatInt(txn.ID, 10),
			txn.PayerID.String(),
			txn.PayeeID.String(),
			txn.Amount.StringFixed(amountPrecision),
			txn.Timestamp.Format(time.RFC3339),
			string(txn.Status),
		}
		if err = cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// PDFStatement writes the filtered ledger as a tabular PDF report.
func (r *Reporter) PDFStatement(ctx context.Context, w io.Writer, filter TxnFilter) error {
	txns, err := r.svc.Transactions(ctx, filter)
	if err != nil {
		return err
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, "Transaction Report", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	widths := []float64{28, 40, 40, 26, 42, 14}
	headers := []string{"ID", "Payer", "Payee", "Amount", "Date", "Status"}
	pdf.SetFont("Helvetica", "B", 9)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, txn := range txns {
		cells := []string{
			strconv.FormatInt(txn.ID, 10),
			txn.PayerID.String(),
			txn.PayeeID.String(),
			txn.Amount.StringFixed(amountPrecision),
			txn.Timestamp.Format("2006-01-02 15:04"),
			string(txn.Status),
		}
		for i, c := range cells {
			pdf.CellFormat(widths[i], 6, c, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	return pdf.Output(w)
}
