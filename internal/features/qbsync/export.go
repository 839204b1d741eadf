package qbsync

import (
	"context"
	"fmt"
	"io"
	"time"

	"roof-crm/pkg/utils"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Sync Log"

var exportColumns = []string{
	"Time", "Entity Type", "Entity ID", "QuickBooks ID", "Action",
	"Direction", "Status", "Error Code", "Error",
}

// ExportFilename names the spreadsheet handed back for a tenant's sync log.
func ExportFilename(tenantID string, now time.Time) string {
	return fmt.Sprintf("%s-%s.xlsx", utils.Slugify("qb sync log "+tenantID), now.UTC().Format("20060102-150405"))
}

// ExportLogs writes the tenant's sync log as an xlsx workbook, newest first.
func (s *SyncServiceImpl) ExportLogs(ctx context.Context, tenantID string, filter LogFilter, w io.Writer) error {
	entries, err := s.LogRepo.List(ctx, tenantID, filter)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return err
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	for i, col := range exportColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(exportSheet, cell, col)
		f.SetCellStyle(exportSheet, cell, cell, headerStyle)
	}

	for rowIdx, e := range entries {
		row := []interface{}{
			e.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			e.EntityType, e.EntityID, e.QBEntityID, string(e.Action),
			string(e.Direction), string(e.Status), e.ErrorCode, e.ErrorMessage,
		}
		cell, _ := excelize.CoordinatesToCellName(1, rowIdx+2)
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return err
		}
	}

	for i := range exportColumns {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(exportSheet, col, col, 18)
	}

	_, err = f.WriteTo(w)
	return err
}
