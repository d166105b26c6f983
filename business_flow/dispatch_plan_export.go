package businessflow

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/amirphl/Yamata-WABA/app/dto"
	"github.com/xuri/excelize/v2"
)

const (
	ExportFormatCSV  = "csv"
	ExportFormatXLSX = "xlsx"

	contentTypeCSV  = "text/csv"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var planExportHeader = []string{
	"batch_number", "start_index", "recipient_count", "byte_estimate",
	"start_offset_seconds", "spacing_seconds", "last_send_offset_seconds",
}

// ExportPlan renders the plan as CSV or XLSX
func (f *DispatchPlanFlowImpl) ExportPlan(ctx context.Context, req *dto.ExportDispatchPlanRequest) (*dto.ExportDispatchPlanResponse, error) {
	if req.Format != ExportFormatCSV && req.Format != ExportFormatXLSX {
		return nil, NewBusinessErrorf("INVALID_EXPORT_FORMAT", "Unsupported export format %q", ErrInvalidExportFormat, req.Format)
	}

	plan, err := f.GetPlan(ctx, &req.DispatchPlanRequest)
	if err != nil {
		return nil, err
	}

	base := fmt.Sprintf("dispatch_plan_campaign_%d", plan.CampaignID)
	switch req.Format {
	case ExportFormatCSV:
		content, err := renderPlanCSV(plan)
		if err != nil {
			return nil, NewBusinessError("CSV_WRITE_ERROR", "Failed to write CSV file", err)
		}
		return &dto.ExportDispatchPlanResponse{FileName: base + ".csv", ContentType: contentTypeCSV, Content: content}, nil
	default:
		content, err := renderPlanXLSX(plan)
		if err != nil {
			return nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", err)
		}
		return &dto.ExportDispatchPlanResponse{FileName: base + ".xlsx", ContentType: contentTypeXLSX, Content: content}, nil
	}
}

func planRecord(b dto.DispatchBatchItem) []string {
	return []string{
		strconv.Itoa(b.BatchNumber),
		strconv.Itoa(b.StartIndex),
		strconv.Itoa(b.RecipientCount),
		strconv.Itoa(b.ByteEstimate),
		strconv.Itoa(b.StartOffsetSeconds),
		strconv.FormatFloat(b.SpacingSeconds, 'f', 3, 64),
		strconv.FormatFloat(b.LastSendOffsetSeconds, 'f', 3, 64),
	}
}

func renderPlanCSV(plan *dto.DispatchPlanResponse) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(planExportHeader); err != nil {
		return nil, err
	}
	for _, b := range plan.Batches {
		if err := w.Write(planRecord(b)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderPlanXLSX(plan *dto.DispatchPlanResponse) ([]byte, error) {
	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	sheet := "plan"
	xl.SetSheetName(xl.GetSheetName(0), sheet)

	header := planExportHeader
	if err := xl.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}
	for i, b := range plan.Batches {
		cellRef, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []any{
			b.BatchNumber, b.StartIndex, b.RecipientCount, b.ByteEstimate,
			b.StartOffsetSeconds, b.SpacingSeconds, b.LastSendOffsetSeconds,
		}
		if err := xl.SetSheetRow(sheet, cellRef, &row); err != nil {
			return nil, err
		}
	}

	summary := "summary"
	if _, err := xl.NewSheet(summary); err != nil {
		return nil, err
	}
	rows := [][]any{
		{"max_batch_size", plan.Throttle.MaxBatchSize},
		{"max_per_minute", plan.Throttle.MaxPerMinute},
		{"min_gap_seconds", plan.Throttle.MinGapSeconds},
		{"total_recipients", plan.Throttle.TotalRecipients},
		{"total_batches", plan.Throttle.TotalBatches},
		{"total_bytes", plan.Throttle.TotalBytes},
		{"estimated_duration_seconds", plan.Throttle.EstimatedDurationSeconds},
	}
	for i, r := range rows {
		cellRef, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := xl.SetSheetRow(summary, cellRef, &r); err != nil {
			return nil, err
		}
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
