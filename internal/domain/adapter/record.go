package adapter

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/okian/civicwatch/internal/domain/model"
)

// Record is one raw item as handed over by a fetcher. The concrete variants
// are the only place source-specific shapes exist.
type Record interface {
	SourceType() model.SourceType
	Raw() json.RawMessage
}

// Attachment is a raw document reference.
type Attachment struct {
	URL  string `json:"url"`
	Type string `json:"type"`
	Hash string `json:"hash"`
}

// MeetingRecord is an agenda item or meeting listing from a meeting portal.
type MeetingRecord struct {
	ID          Key          `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Body        string       `json:"body"` // committee or board name
	Date        Time         `json:"date"`
	Location    string       `json:"location"`
	Lat         *float64     `json:"lat"`
	Lon         *float64     `json:"lon"`
	Categories  []string     `json:"categories"`
	Attachments []Attachment `json:"attachments"`

	raw json.RawMessage
}

// PermitRecord is one row of a permit registry.
type PermitRecord struct {
	PermitNumber Key          `json:"permit_number"`
	Title        string       `json:"title"`
	PermitType   string       `json:"permit_type"`
	Description  string       `json:"description"`
	Status       string       `json:"status"`
	Applicant    string       `json:"applicant"`
	Address      string       `json:"address"`
	Parcel       string       `json:"parcel"`
	FiledDate    Time         `json:"filed_date"`
	IssuedDate   Time         `json:"issued_date"`
	Category     string       `json:"category"`
	Attachments  []Attachment `json:"attachments"`

	raw json.RawMessage
}

// NoticeRecord is a legal or public notice.
type NoticeRecord struct {
	NoticeID    Key          `json:"notice_id"`
	Headline    string       `json:"headline"`
	Body        string       `json:"body"`
	Category    string       `json:"category"`
	Published   Time         `json:"published"`
	HearingDate Time         `json:"hearing_date"`
	Address     string       `json:"address"`
	URL         string       `json:"url"`
	Attachments []Attachment `json:"attachments"`

	raw json.RawMessage
}

// Malformed stands in for an item that could not be decoded. Adapters skip it.
type Malformed struct {
	Type model.SourceType
	Err  error

	raw json.RawMessage
}

func (r *MeetingRecord) SourceType() model.SourceType { return model.SourceMeeting }
func (r *PermitRecord) SourceType() model.SourceType  { return model.SourcePermit }
func (r *NoticeRecord) SourceType() model.SourceType  { return model.SourceNotice }
func (r *Malformed) SourceType() model.SourceType     { return r.Type }

func (r *MeetingRecord) Raw() json.RawMessage { return r.raw }
func (r *PermitRecord) Raw() json.RawMessage  { return r.raw }
func (r *NoticeRecord) Raw() json.RawMessage  { return r.raw }
func (r *Malformed) Raw() json.RawMessage     { return r.raw }

// Decode parses a JSON array of raw items into records of the variant that
// matches st. Items that fail to decode become Malformed records so the rest
// of the batch still flows; only a payload that isn't an array is an error.
func Decode(st model.SourceType, data []byte) ([]Record, error) {
	if !st.Valid() {
		return nil, fmt.Errorf("%w: source type %q", ErrDecode, st)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	out := make([]Record, 0, len(items))
	for _, raw := range items {
		out = append(out, decodeOne(st, raw))
	}
	return out, nil
}

func decodeOne(st model.SourceType, raw json.RawMessage) Record {
	raw = append(json.RawMessage(nil), raw...)
	var rec Record
	switch st {
	case model.SourceMeeting:
		rec = &MeetingRecord{raw: raw}
	case model.SourcePermit:
		rec = &PermitRecord{raw: raw}
	default:
		rec = &NoticeRecord{raw: raw}
	}
	if err := json.Unmarshal(raw, rec); err != nil {
		return &Malformed{Type: st, Err: err, raw: raw}
	}
	return rec
}

// Key is a portal item id. Portals publish it as a string or a number.
type Key string

// UnmarshalJSON implements json.Unmarshaler. Null leaves the empty key.
func (k *Key) UnmarshalJSON(b []byte) error {
	if strings.TrimSpace(string(b)) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*k = Key(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or a number: %w", err)
	}
	*k = Key(n.String())
	return nil
}

// Time accepts the date layouts civic portals actually publish.
type Time struct {
	time.Time
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04",
	"01/02/2006",
}

// UnmarshalJSON implements json.Unmarshaler. Empty strings and null leave
// the zero time.
func (t *Time) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == `""` {
		return nil
	}
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	pt, err := ParseTime(v)
	if err != nil {
		return err
	}
	t.Time = pt
	return nil
}

// ParseTime parses s with the first matching layout, or as epoch seconds.
// Zone-less layouts are UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) >= 9 && strings.Trim(s, "0123456789") == "" {
		if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Unix(sec, 0).UTC(), nil
		}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}
