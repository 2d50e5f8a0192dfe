// Package export renders the payment register as an xlsx workbook.
package export

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/spend-requests/internal/application/port"
	"github.com/garyjia/spend-requests/internal/domain/entity"
)

// SheetName is the worksheet holding the register
const SheetName = "Register"

var registerHeader = []interface{}{
	"Request No", "Status", "Counterparty", "Amount", "Currency", "VAT %",
	"Due date", "Days left", "Priority", "Contracts", "Requested by",
}

// RegisterExporter writes the register with excelize
type RegisterExporter struct {
	logger *zap.Logger
}

// NewRegisterExporter creates a new register exporter
func NewRegisterExporter(logger *zap.Logger) *RegisterExporter {
	return &RegisterExporter{logger: logger}
}

// Export renders requests ordered by due date, followed by per-currency totals
func (e *RegisterExporter) Export(ctx context.Context, requests []*entity.PaymentRequest, generatedAt time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	rows := append([]*entity.PaymentRequest(nil), requests...)
	sort.SliceStable(rows, func(i, j int) bool {
		return dueKey(rows[i]).Before(dueKey(rows[j]))
	})

	if err := f.SetCellValue(SheetName, "A1", fmt.Sprintf("Payment register, %s", generatedAt.Format("2006-01-02 15:04"))); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(SheetName, "A3", &registerHeader); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	if err := e.styleHeader(f); err != nil {
		return nil, err
	}

	totals := make(map[string]decimal.Decimal)
	rowNo := 4
	for _, r := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cell, _ := excelize.CoordinatesToCellName(1, rowNo)
		values := registerRow(r, generatedAt)
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", rowNo, err)
		}
		totals[r.Currency] = totals[r.Currency].Add(r.Amount)
		rowNo++
	}

	currencies := make([]string, 0, len(totals))
	for c := range totals {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)

	rowNo++
	for _, c := range currencies {
		cell, _ := excelize.CoordinatesToCellName(3, rowNo)
		total := []interface{}{"Total", totals[c].InexactFloat64(), c}
		if err := f.SetSheetRow(SheetName, cell, &total); err != nil {
			return nil, fmt.Errorf("failed to write totals: %w", err)
		}
		rowNo++
	}

	if err := f.SetColWidth(SheetName, "A", "K", 16); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Info("Register rendered", zap.Int("requests", len(rows)), zap.Int("bytes", buf.Len()))
	return buf.Bytes(), nil
}

func (e *RegisterExporter) styleHeader(f *excelize.File) error {
	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	return f.SetCellStyle(SheetName, "A3", "K3", style)
}

func registerRow(r *entity.PaymentRequest, now time.Time) []interface{} {
	due, daysLeft := "", interface{}("")
	if r.DueDate != nil {
		due = r.DueDate.Format("2006-01-02")
		daysLeft = entity.DaysUntil(*r.DueDate, now)
	}

	contracts := make([]string, 0, len(r.PaymentAllocations))
	for _, a := range r.PaymentAllocations {
		contracts = append(contracts, fmt.Sprintf("%s: %s", a.ContractID, a.Amount.String()))
	}

	return []interface{}{
		r.RequestNumber,
		r.Status.String(),
		r.CounterpartyID,
		r.Amount.InexactFloat64(),
		r.Currency,
		r.VATRate.InexactFloat64(),
		due,
		daysLeft,
		r.Priority,
		strings.Join(contracts, "; "),
		r.CreatedBy,
	}
}

// dueKey sorts undated requests last
func dueKey(r *entity.PaymentRequest) time.Time {
	if r.DueDate == nil {
		return time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return *r.DueDate
}

// Verify interface compliance
var _ port.RegisterExporter = (*RegisterExporter)(nil)
