package viz

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"

	"github.com/calebmoss/invoiceflow/core"
	"github.com/calebmoss/invoiceflow/session"
)

// Service builds chart data for a session.
type Service struct {
	store  *session.Store
	logger *slog.Logger
}

func NewService(store *session.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// Columns lists the columns available for visualization.
func (s *Service) Columns(sessionID string) ([]string, error) {
	f, err := s.loadFrame(sessionID)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), f.columns...), nil
}

// Generate builds every chart whose required roles are covered by the
// selected columns. Selections that name unknown columns are rejected,
// listing the offenders. A valid selection that covers no chart yields an
// empty result, not an error.
func (s *Service) Generate(sessionID string, selected []string) ([]ChartSpec, error) {
	f, err := s.loadFrame(sessionID)
	if err != nil {
		return nil, err
	}

	var invalid []string
	for _, col := range selected {
		if !f.has(col) {
			invalid = append(invalid, col)
		}
	}
	if len(invalid) > 0 {
		return nil, core.NewError(core.ErrBadInput,
			fmt.Sprintf("unknown columns: %v", invalid),
			core.WithDetails(map[string]any{"invalid_columns": invalid}))
	}
	if len(selected) == 0 {
		return nil, core.NewError(core.ErrBadInput, "no columns selected")
	}

	roles := inferRoles(f.columns, selected)
	dateCol := roles[RoleDate]
	productCol := roles[RoleProduct]
	amountCol := roles[RoleAmount]
	quantityCol := roles[RoleQuantity]
	invoiceCol := roles[RoleInvoice]

	var charts []ChartSpec
	add := func(c *ChartSpec) {
		if c != nil {
			charts = append(charts, *c)
		}
	}

	if amountCol != "" {
		add(amountBoxplot(f, amountCol))
	}
	if quantityCol != "" {
		add(quantityBoxplot(f, quantityCol))
	}
	if productCol != "" && amountCol != "" {
		add(productSalesBar(f, productCol, amountCol))
		add(topProductsPareto(f, productCol, amountCol))
	}
	if productCol != "" && quantityCol != "" {
		add(quantityByProduct(f, productCol, quantityCol))
	}
	if dateCol != "" && amountCol != "" {
		add(dailySalesLine(f, dateCol, amountCol))
		add(monthlyRevenue(f, dateCol, amountCol))
		add(weekdaySales(f, dateCol, amountCol))
	}
	if invoiceCol != "" && dateCol != "" {
		add(dailyInvoiceCount(f, invoiceCol, dateCol))
	}
	if invoiceCol != "" && productCol != "" {
		add(productsPerInvoice(f, invoiceCol, productCol))
	}

	s.logger.Info("generated charts", "session_id", sessionID, "charts", len(charts))
	return charts, nil
}

// loadFrame prefers a directly uploaded CSV over the extracted table.
func (s *Service) loadFrame(sessionID string) (frame, error) {
	if uploads, err := s.store.UploadsByExt(sessionID, "csv"); err == nil && len(uploads) > 0 {
		file, err := os.Open(uploads[0])
		if err == nil {
			defer file.Close()
			reader := csv.NewReader(file)
			reader.FieldsPerRecord = -1
			if records, err := reader.ReadAll(); err == nil && len(records) > 0 {
				return newFrame(records), nil
			}
		}
		s.logger.Warn("failed to read uploaded csv", "session_id", sessionID, "path", uploads[0])
	} else if err != nil {
		return frame{}, err
	}

	records, err := s.store.LoadCSV(sessionID)
	if err != nil {
		if core.IsNotFound(err) {
			return frame{}, core.NewError(core.ErrNotFound, "no data found, upload invoices or a CSV first")
		}
		return frame{}, err
	}
	if len(records) == 0 {
		return frame{}, core.NewError(core.ErrNotFound, "no data found, upload invoices or a CSV first")
	}
	return newFrame(records), nil
}
