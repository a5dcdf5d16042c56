package reports

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"bitbucket.org/mmdatafocus/financeiro_backend/migrator"
	"bitbucket.org/mmdatafocus/financeiro_backend/workflow"
)

const (
	stepsSheet         = "Steps"
	normalizationSheet = "Normalization"
)

// ExportRunSummary writes the migration summary and/or the normalization
// result to an xlsx file. Either may be nil.
func ExportRunSummary(filename string, summary *migrator.Summary, result *workflow.NormalizeResult) error {
	f, err := BuildRunSummary(summary, result)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.SaveAs(filename)
}

func BuildRunSummary(summary *migrator.Summary, result *workflow.NormalizeResult) (*excelize.File, error) {
	if summary == nil && result == nil {
		return nil, fmt.Errorf("nothing to export")
	}
	f := excelize.NewFile()
	first := ""
	if summary != nil {
		if err := writeSteps(f, summary); err != nil {
			return nil, err
		}
		first = stepsSheet
	}
	if result != nil {
		if err := writeNormalization(f, result); err != nil {
			return nil, err
		}
		if first == "" {
			first = normalizationSheet
		}
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}
	idx, err := f.GetSheetIndex(first)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(idx)
	return f, nil
}

func writeSteps(f *excelize.File, s *migrator.Summary) error {
	if _, err := f.NewSheet(stepsSheet); err != nil {
		return err
	}
	rows := [][]interface{}{
		{"Run", s.RunID.String(), "Dialect", s.Dialect, "Dry run", s.DryRun},
		{},
		{"Step", "Description", "Critical", "Outcome", "Changes", "Rows backfilled", "Warnings", "Error"},
	}
	for _, r := range s.Steps {
		errText := ""
		if r.Err != nil {
			errText = r.Err.Error()
		}
		rows = append(rows, []interface{}{
			r.ID, r.Description, r.Critical, string(r.Outcome),
			strings.Join(r.Changes, "\n"), r.BackfilledRows, strings.Join(r.Warnings, "\n"), errText,
		})
	}
	return writeRows(f, stepsSheet, rows)
}

func writeNormalization(f *excelize.File, r *workflow.NormalizeResult) error {
	if _, err := f.NewSheet(normalizationSheet); err != nil {
		return err
	}
	rows := [][]interface{}{
		{"Empresa", "Nodes created", "Reclassified", "Fallback", "Skipped", "Relinked", "Unmatched", "Relinked amount", "Error"},
	}
	for _, t := range r.Tenants {
		errText := ""
		if t.Err != nil {
			errText = t.Err.Error()
		}
		amount, _ := t.RelinkedAmount.Float64()
		rows = append(rows, []interface{}{
			t.EmpresaId, t.NodesCreated, t.AccountsReclassified, t.FallbackClassifications, t.AccountsSkipped,
			t.PostingsRelinked, t.PostingsUnmatched, amount, errText,
		})
	}
	total, _ := r.RelinkedAmount.Float64()
	rows = append(rows, []interface{}{
		"Total", r.NodesCreated, r.AccountsReclassified, r.FallbackClassifications, r.AccountsSkipped,
		r.PostingsRelinked, r.PostingsUnmatched, total, fmt.Sprintf("%d failed", len(r.TenantsFailed)),
	})
	return writeRows(f, normalizationSheet, rows)
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}
