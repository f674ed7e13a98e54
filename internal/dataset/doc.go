// Package dataset loads the district price index observations that feed the
// forecast pipeline.
//
// The canonical statistics workbook is wide: one row per district, one column
// per month with headers like "2014. 01". Loading melts it into a long table
// of (date, district, price) rows, dropping city-wide aggregate rows and
// cells that do not coerce to a number. The same long table can be persisted
// to and reloaded from a UTF-8 CSV, which is the format the command line
// tools exchange.
//
// Discovery locates workbooks and CSV files on disk and can pick the most
// recent one, so callers never hardcode a data file name.
package dataset
