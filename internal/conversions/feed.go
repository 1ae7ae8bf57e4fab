package conversions

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/mtarasenko/schoolleads/internal/leads"
)

// Direct rejects conversions older than 113 days with
// "create_date_time is older than 113 days".
const maxAgeDays = 113

// Direct caps revenue at this value; anything outside [0, max] is
// replaced with 0 before formatting.
const maxRevenue = int64(9223372036854)

// createDateTimeLayout is Direct's required dd.MM.yyyy HH:mm:ss, local
// naive time.
const createDateTimeLayout = "02.01.2006 15:04:05"

// revenueByStatus is the conversion value per lifecycle state, in RUB.
var revenueByStatus = map[leads.Status]int64{
	leads.StatusTrialScheduled: 500,
	leads.StatusTrialCompleted: 1000,
	leads.StatusEnrolled:       5000,
	leads.StatusPaid:           15000,
}

// orderStatusByStatus maps lifecycle states onto Direct's fixed
// order_status vocabulary (IN_PROGRESS, PAID, CANCELLED, SPAM).
var orderStatusByStatus = map[leads.Status]string{
	leads.StatusTrialScheduled: "IN_PROGRESS",
	leads.StatusTrialCompleted: "IN_PROGRESS",
	leads.StatusEnrolled:       "IN_PROGRESS",
	leads.StatusPaid:           "PAID",
}

// feedHeader is the column set of the "conversions by link" format.
// Order and presence are fixed by Direct; emails and cost stay empty
// because the lead model tracks neither.
var feedHeader = []string{
	"create_date_time",
	"id",
	"client_uniq_id",
	"client_ids",
	"emails",
	"phones",
	"emails_md5",
	"phones_md5",
	"order_status",
	"revenue",
	"cost",
}

// Row is one conversion in the Direct feed, derived from a lead and
// discarded after encoding.
type Row struct {
	CreateDateTime string
	LeadID         int64
	ClientUniqID   string
	ClientIDs      string
	Phones         string
	PhonesMD5      string
	OrderStatus    string
	Revenue        string
}

// DropStats counts leads excluded while building the feed. These are
// steady-state exclusions, not errors.
type DropStats struct {
	TooOld     int
	NoIdentity int
}

// BuildRows runs the eligibility filter and field mapper over fetched
// leads. The order of the input is preserved for surviving rows.
func BuildRows(items []leads.Lead, now time.Time) ([]Row, DropStats) {
	var stats DropStats
	rows := make([]Row, 0, len(items))
	cutoff := now.AddDate(0, 0, -maxAgeDays)

	for _, lead := range items {
		at := eventTime(lead, now)
		if at.After(now) {
			// Direct rejects future timestamps; clamp instead of dropping.
			at = now
		}
		if at.Before(cutoff) {
			stats.TooOld++
			continue
		}

		clientID := ValidClientID(lead.YMClientID)
		phone := NormalizePhone(lead.Phone)
		if clientID == "" && phone == "" {
			stats.NoIdentity++
			continue
		}

		rows = append(rows, Row{
			CreateDateTime: at.Local().Format(createDateTimeLayout),
			LeadID:         lead.ID,
			ClientUniqID:   fmt.Sprintf("lead_%d", lead.ID),
			ClientIDs:      clientID,
			Phones:         phone,
			PhonesMD5:      PhoneMD5(phone),
			OrderStatus:    orderStatusFor(lead.Status),
			Revenue:        formatRevenue(revenueFor(lead.Status)),
		})
	}
	return rows, stats
}

// EncodeCSV renders the feed as semicolon-delimited UTF-8 text with
// the fixed header, header first even when no rows survived.
func EncodeCSV(rows []Row) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = ';'

	if err := w.Write(feedHeader); err != nil {
		return "", fmt.Errorf("conversions: write header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.CreateDateTime,
			strconv.FormatInt(row.LeadID, 10),
			row.ClientUniqID,
			row.ClientIDs,
			"", // emails
			row.Phones,
			"", // emails_md5
			row.PhonesMD5,
			row.OrderStatus,
			row.Revenue,
			"", // cost
		}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("conversions: write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("conversions: flush: %w", err)
	}
	return buf.String(), nil
}

// eventTime resolves a lead's conversion moment: updated_at wins over
// created_at, and a record with neither resolves to now so a malformed
// row degrades instead of failing the run.
func eventTime(lead leads.Lead, now time.Time) time.Time {
	if lead.UpdatedAt != nil && !lead.UpdatedAt.IsZero() {
		return *lead.UpdatedAt
	}
	if !lead.CreatedAt.IsZero() {
		return lead.CreatedAt
	}
	return now
}

func orderStatusFor(status leads.Status) string {
	if s, ok := orderStatusByStatus[status]; ok {
		return s
	}
	return "IN_PROGRESS"
}

func revenueFor(status leads.Status) int64 {
	return revenueByStatus[status]
}

// formatRevenue renders a value as Direct wants it: one decimal digit,
// dot separator, empty when zero. Values outside the representable
// range collapse to zero; the static table never produces such values
// but the feed must stay valid if the table changes.
func formatRevenue(v int64) string {
	if v < 0 || v > maxRevenue {
		v = 0
	}
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(float64(v), 'f', 1, 64)
}
