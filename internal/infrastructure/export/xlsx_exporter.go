// Package export writes approval history to spreadsheets for audit review.
package export

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/approval-gateway/internal/application/port"
	"github.com/garyjia/approval-gateway/internal/domain/entity"
)

// Sheet names of the exported workbook
const (
	ApprovalsSheet = "Approvals"
	ApproversSheet = "Approvers"
)

const pageSize = 500

var approvalHeaders = []string{
	"Approval ID", "Origin", "Requested By", "Document Type", "Document ID", "Document Title",
	"Mode", "Status", "Result Code", "Result Label", "Responded By", "Comment",
	"Created At", "Expires At", "Responded At",
}

var approverHeaders = []string{
	"Approval ID", "Approver Ref", "Recipient", "Display Name", "Status",
	"Response Code", "Comment", "Responded At",
}

// ApprovalSource is the read side of the approval store used by the exporter
type ApprovalSource interface {
	List(ctx context.Context, filter port.ApprovalFilter) ([]*entity.Approval, error)
	Get(ctx context.Context, approvalID string) (*entity.Approval, []*entity.Approver, error)
}

// XLSXExporter writes approvals and their approvers as an Excel workbook
type XLSXExporter struct {
	source ApprovalSource
	logger *zap.Logger
}

// NewXLSXExporter creates a new exporter
func NewXLSXExporter(source ApprovalSource, logger *zap.Logger) *XLSXExporter {
	return &XLSXExporter{
		source: source,
		logger: logger,
	}
}

// Export writes every approval matching filter to w and returns the number
// of approvals written. filter.Limit and filter.Offset are managed here.
func (e *XLSXExporter) Export(ctx context.Context, filter port.ApprovalFilter, w io.Writer) (int, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ApprovalsSheet); err != nil {
		return 0, fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(ApproversSheet); err != nil {
		return 0, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := writeHeader(f, ApprovalsSheet, approvalHeaders); err != nil {
		return 0, err
	}
	if err := writeHeader(f, ApproversSheet, approverHeaders); err != nil {
		return 0, err
	}

	approvalRow, approverRow := 2, 2
	filter.Limit = pageSize
	filter.Offset = 0

	for {
		page, err := e.source.List(ctx, filter)
		if err != nil {
			return 0, fmt.Errorf("failed to list approvals: %w", err)
		}

		for _, a := range page {
			if err := writeRow(f, ApprovalsSheet, approvalRow, approvalValues(a)); err != nil {
				return 0, err
			}
			approvalRow++

			_, approvers, err := e.source.Get(ctx, a.ApprovalID)
			if err != nil {
				return 0, fmt.Errorf("failed to load approvers of %s: %w", a.ApprovalID, err)
			}
			for _, ap := range approvers {
				if err := writeRow(f, ApproversSheet, approverRow, approverValues(ap)); err != nil {
					return 0, err
				}
				approverRow++
			}
		}

		if len(page) < pageSize {
			break
		}
		filter.Offset += pageSize
	}

	if err := f.SetPanes(ApprovalsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		e.logger.Warn("Failed to freeze header row", zap.Error(err))
	}

	if _, err := f.WriteTo(w); err != nil {
		return 0, fmt.Errorf("failed to write workbook: %w", err)
	}

	count := approvalRow - 2
	e.logger.Info("Approvals exported", zap.Int("approvals", count), zap.Int("approvers", approverRow-2))
	return count, nil
}

func writeHeader(f *excelize.File, sheet string, headers []string) error {
	values := make([]interface{}, len(headers))
	for i, h := range headers {
		values[i] = h
	}
	return writeRow(f, sheet, 1, values)
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func approvalValues(a *entity.Approval) []interface{} {
	return []interface{}{
		a.ApprovalID,
		a.OriginSystemRef,
		a.RequestingUserRef,
		a.DocumentType,
		a.DocumentID,
		a.DocumentTitle,
		a.Mode,
		a.Status,
		a.ResultCode,
		a.ResultLabel,
		a.RespondedBy,
		a.Comment,
		formatTime(a.CreatedAt),
		formatTime(a.ExpiresAt()),
		formatTimePtr(a.RespondedAt),
	}
}

func approverValues(ap *entity.Approver) []interface{} {
	return []interface{}{
		ap.ApprovalID,
		ap.ApproverRef,
		ap.ChannelRecipient,
		ap.DisplayName,
		ap.Status,
		ap.ResponseCode,
		ap.Comment,
		formatTimePtr(ap.RespondedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
