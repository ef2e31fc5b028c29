package jquants

import (
	"strconv"
	"strings"
	"time"

	"github.com/kessanview/kessanview/internal/domain"
)

// statementsResponse is the /fins/summary envelope.
type statementsResponse struct {
	Data          []statementRecord `json:"data"`
	PaginationKey string            `json:"pagination_key"`
}

// statementRecord mirrors the abbreviated V2 field names on the wire.
// Numeric figures arrive as strings and may be empty when unreported.
type statementRecord struct {
	Code       string `json:"Code"`
	DiscDate   string `json:"DiscDate"` // YYYY-MM-DD or YYYYMMDD
	DiscTime   string `json:"DiscTime"` // HH:MM:SS
	DiscNo     string `json:"DiscNo"`
	DocType    string `json:"DocType"`
	CurPerType string `json:"CurPerType"` // 1Q, 2Q, 3Q, FY
	CurFYEn    string `json:"CurFYEn"`    // fiscal year end date
	Sales      string `json:"Sales"`
	OP         string `json:"OP"`
	NP         string `json:"NP"`
	Currency   string `json:"Currency"`
}

// periodOrder maps the upstream period type to a fiscal quarter.
// FY is treated as the fourth quarter, matching its position in the cycle.
var periodOrder = map[string]domain.Quarter{
	"1Q": 1,
	"2Q": 2,
	"3Q": 3,
	"FY": 4,
}

// toSnapshot validates and converts one wire record.
// Validation failures return a DataIntegrityError; the caller counts and
// skips them without failing the page.
func (r *statementRecord) toSnapshot() (*domain.DisclosureSnapshot, error) {
	if r.Code == "" {
		return nil, &domain.DataIntegrityError{Field: "Code", Reason: "is empty"}
	}

	quarter, ok := periodOrder[r.CurPerType]
	if !ok {
		return nil, &domain.DataIntegrityError{Field: "CurPerType", Reason: "is not a recognized period type"}
	}

	fyEnd, err := parseDate(r.CurFYEn)
	if err != nil {
		return nil, &domain.DataIntegrityError{Field: "CurFYEn", Reason: "is not a valid date"}
	}

	reportedAt, err := parseReportedAt(r.DiscDate, r.DiscTime)
	if err != nil {
		return nil, &domain.DataIntegrityError{Field: "DiscDate", Reason: "is not a valid date"}
	}

	currency := r.Currency
	if currency == "" {
		currency = "JPY"
	}

	return &domain.DisclosureSnapshot{
		CompanyID: r.Code,
		Period: domain.PeriodKey{
			FiscalYear: fyEnd.Year(),
			Quarter:    quarter,
		},
		ReportedAt:       reportedAt,
		DisclosureNumber: r.DiscNo,
		DocumentType:     r.DocType,
		Revenue:          parseFigure(r.Sales),
		OperatingProfit:  parseFigure(r.OP),
		NetIncome:        parseFigure(r.NP),
		Currency:         currency,
		IsConsolidated:   strings.Contains(r.DocType, "Consolidated"),
	}, nil
}

// listedInfoResponse is the /equities/master envelope.
type listedInfoResponse struct {
	Data          []listedInfoRecord `json:"data"`
	PaginationKey string             `json:"pagination_key"`
}

type listedInfoRecord struct {
	Code   string `json:"Code"`
	CoName string `json:"CoName"`
	S17    string `json:"S17"`
	S17Nm  string `json:"S17Nm"`
	S33    string `json:"S33"`
	S33Nm  string `json:"S33Nm"`
	Mkt    string `json:"Mkt"`
	MktNm  string `json:"MktNm"`
}

func (r *listedInfoRecord) toCompany() domain.Company {
	return domain.Company{
		Code:         r.Code,
		Name:         r.CoName,
		Sector17Code: r.S17,
		Sector17Name: r.S17Nm,
		Sector33Code: r.S33,
		Sector33Name: r.S33Nm,
		MarketCode:   r.Mkt,
		MarketName:   r.MktNm,
	}
}

// dailyQuotesResponse is the /equities/bars/daily envelope.
type dailyQuotesResponse struct {
	Data          []dailyQuoteRecord `json:"data"`
	PaginationKey string             `json:"pagination_key"`
}

type dailyQuoteRecord struct {
	Code      string `json:"Code"`
	Date      string `json:"Date"`
	O         string `json:"O"`
	H         string `json:"H"`
	L         string `json:"L"`
	C         string `json:"C"`
	Vo        string `json:"Vo"`
	Va        string `json:"Va"`
	AdjFactor string `json:"AdjFactor"`
	AdjC      string `json:"AdjC"`
}

func (r *dailyQuoteRecord) toDailyPrice() (domain.DailyPrice, bool) {
	tradeDate, err := parseDate(r.Date)
	if err != nil || r.Code == "" {
		return domain.DailyPrice{}, false
	}

	adjFactor := 1.0
	if f := parseFigure(r.AdjFactor); f != nil {
		adjFactor = *f
	}

	return domain.DailyPrice{
		CompanyID:        r.Code,
		TradeDate:        tradeDate.Format("2006-01-02"),
		Open:             parseFigure(r.O),
		High:             parseFigure(r.H),
		Low:              parseFigure(r.L),
		Close:            parseFigure(r.C),
		Volume:           parseFigure(r.Vo),
		TurnoverValue:    parseFigure(r.Va),
		AdjustmentFactor: adjFactor,
		AdjustedClose:    parseFigure(r.AdjC),
	}, true
}

// parseDate accepts the YYYY-MM-DD and YYYYMMDD forms the API mixes.
func parseDate(s string) (time.Time, error) {
	clean := strings.ReplaceAll(s, "-", "")
	return time.Parse("20060102", clean)
}

// parseReportedAt combines the disclosure date and time-of-day. A missing
// or malformed time falls back to the start of the day so corrections
// disclosed later the same day still compare as newer when timed.
func parseReportedAt(dateStr, timeStr string) (time.Time, error) {
	day, err := parseDate(dateStr)
	if err != nil {
		return time.Time{}, err
	}

	if timeStr != "" {
		if t, err := time.Parse("15:04:05", timeStr); err == nil {
			return day.Add(time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second), nil
		}
	}

	return day, nil
}

// parseFigure converts a wire figure to a nullable float.
// Empty strings mean the figure was not reported.
func parseFigure(s string) *float64 {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	return &f
}
