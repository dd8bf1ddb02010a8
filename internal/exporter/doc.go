// Package exporter writes spc tables to disk.
//
// CSVWriter writes one table per file and is used for every gold part file.
// Files are written to a temporary sibling and renamed into place, so readers
// never observe a half-written part.
//
// XLSXWriter bundles several tables into one workbook, one sheet each, for
// operators who review limits, alerts and capability in Excel:
//
//	w := exporter.NewXLSXWriter(logger)
//	err := w.WriteSheets("report.xlsx",
//		exporter.Sheet{Name: "limits", Table: spc.LimitsTable(limits, "STEP_ID")},
//		exporter.Sheet{Name: "alerts", Table: spc.AlertsTable(alerts, "STEP_ID")},
//	)
package exporter
