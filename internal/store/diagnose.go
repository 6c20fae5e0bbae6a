package store

import (
	"context"
	"fmt"
)

// TableReport describes one table for the diagnostic command.
type TableReport struct {
	Name    string
	Present bool
	Rows    int64
}

// Tables the application expects after a full migration.
var Tables = []string{"users", "students", "attendance_records"}

// TableExists checks sqlite_master for the named table.
func (d *DB) TableExists(ctx context.Context, name string) (bool, error) {
	var count int
	err := d.Client.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("checking table %s: %w", name, err)
	}
	return count > 0, nil
}

// RowCount returns the number of rows in the named table. The name comes
// from the fixed Tables list, never from user input.
func (d *DB) RowCount(ctx context.Context, name string) (int64, error) {
	var count int64
	err := d.Client.GetContext(ctx, &count, fmt.Sprintf("SELECT COUNT(*) FROM %s", name))
	if err != nil {
		return 0, fmt.Errorf("counting rows in %s: %w", name, err)
	}
	return count, nil
}

// Diagnose reports presence and row counts for every expected table. A
// missing table is a finding, not an error.
func (d *DB) Diagnose(ctx context.Context) ([]TableReport, error) {
	reports := make([]TableReport, 0, len(Tables))
	for _, name := range Tables {
		present, err := d.TableExists(ctx, name)
		if err != nil {
			return nil, err
		}
		report := TableReport{Name: name, Present: present}
		if present {
			if report.Rows, err = d.RowCount(ctx, name); err != nil {
				return nil, err
			}
		}
		reports = append(reports, report)
	}
	return reports, nil
}
