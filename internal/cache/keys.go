package cache

import (
	"fmt"
	"time"

	"parkwatch/internal/period"
)

const hourlyReportPattern = "report:hourly:*"

// KeyHourlyReport identifies a report by period, the first day it covers and
// the record set it was built from. A late record changes the key, so a
// stale report is never served for data it did not see.
func KeyHourlyReport(k period.Keyword, start time.Time, records int, fingerprint uint64) string {
	return fmt.Sprintf("report:hourly:%s:%s:%d:%016x", k, start.Format("2006-01-02"), records, fingerprint)
}
