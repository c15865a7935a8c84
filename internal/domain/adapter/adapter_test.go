package adapter_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/okian/civicwatch/internal/domain/adapter"
	"github.com/okian/civicwatch/internal/domain/extract"
	"github.com/okian/civicwatch/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

const rezoningMeeting = `[{
	"id": "4711",
	"title": "Planning Commission — Rezoning RZ-2026-001",
	"description": "Request to rezone 12 Elm St from R-1 to R-3.",
	"body": "Planning Commission",
	"date": "2026-11-03 18:00",
	"location": "City Hall, Room 201",
	"attachments": [{"url": "https://example.gov/agenda/4711.pdf", "type": "agenda"}]
}]`

func meetingConfig() model.SourceConfig {
	return model.SourceConfig{
		ID:   "springfield-meetings",
		Type: model.SourceMeeting,
		URL:  "https://example.gov/meetings.json",
		Keywords: map[string][]string{
			"rezoning": {"rezoning"},
			"planning": {"planning"},
		},
	}
}

func TestMeetingAdapter(t *testing.T) {
	convey.Convey("Given the default registry and a rezoning meeting record", t, func() {
		reg := adapter.Default(extract.NewHeuristic())
		recs, err := adapter.Decode(model.SourceMeeting, []byte(rezoningMeeting))
		convey.So(err, convey.ShouldBeNil)
		convey.So(recs, convey.ShouldHaveLength, 1)

		convey.Convey("When adapting it", func() {
			ev, err := reg.Adapt(recs[0], meetingConfig())
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then it becomes a tagged meeting event", func() {
				convey.So(ev.EventType, convey.ShouldEqual, model.EventMeeting)
				convey.So(ev.Title, convey.ShouldEqual, "Planning Commission — Rezoning RZ-2026-001")
				convey.So(ev.SourceID, convey.ShouldEqual, "springfield-meetings")
				convey.So(ev.Timestamp, convey.ShouldEqual, time.Date(2026, 11, 3, 18, 0, 0, 0, time.UTC))
				convey.So(ev.Tags, convey.ShouldContain, "rezoning")
				convey.So(ev.Tags, convey.ShouldContain, "planning")
				convey.So(ev.Tags, convey.ShouldContain, "meeting")
				convey.So(ev.Entities, convey.ShouldContain, model.Entity{Name: "RZ-2026-001", Kind: model.EntityCaseNumber})
				convey.So(ev.Documents, convey.ShouldHaveLength, 1)
				convey.So(ev.Location.Address, convey.ShouldEqual, "City Hall, Room 201")
				convey.So(ev.ContentHash, convey.ShouldEqual, model.ComputeContentHash(&ev))
				convey.So(strings.HasPrefix(ev.EventID, "springfield-meetings:"), convey.ShouldBeTrue)
				convey.So(string(ev.RawData), convey.ShouldContainSubstring, `"id": "4711"`)
			})

			convey.Convey("Then adapting a re-fetched copy yields the same id and hash", func() {
				again, err := adapter.Decode(model.SourceMeeting, []byte(rezoningMeeting))
				convey.So(err, convey.ShouldBeNil)
				ev2, err := reg.Adapt(again[0], meetingConfig())
				convey.So(err, convey.ShouldBeNil)
				convey.So(ev2.EventID, convey.ShouldEqual, ev.EventID)
				convey.So(ev2.ContentHash, convey.ShouldEqual, ev.ContentHash)
			})
		})

		convey.Convey("When category tags and default tags are configured", func() {
			cfg := meetingConfig()
			cfg.CategoryTags = map[string]string{"Planning Commission": "land-use"}
			cfg.DefaultTags = []string{"Springfield"}
			ev, err := reg.Adapt(recs[0], cfg)
			convey.So(err, convey.ShouldBeNil)
			convey.So(ev.Tags, convey.ShouldContain, "land-use")
			convey.So(ev.Tags, convey.ShouldContain, "springfield")
		})
	})
}

func TestNumericItemIDs(t *testing.T) {
	convey.Convey("Given feeds that publish numeric item ids", t, func() {
		reg := adapter.Default(extract.NewHeuristic())

		convey.Convey("When a meeting id is a JSON number", func() {
			recs, err := adapter.Decode(model.SourceMeeting, []byte(`[{"id": 4711, "title": "Council meeting"}]`))
			convey.So(err, convey.ShouldBeNil)
			ev, err := reg.Adapt(recs[0], meetingConfig())

			convey.Convey("Then it adapts to the same event as the string id", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(ev.EventID, convey.ShouldEqual, adapter.EventID("springfield-meetings", model.SourceMeeting, "4711"))
			})
		})

		convey.Convey("When permit and notice keys are numbers", func() {
			permits, err := adapter.Decode(model.SourcePermit, []byte(`[{"permit_number": 20260042, "title": "Deck"}]`))
			convey.So(err, convey.ShouldBeNil)
			p, ok := permits[0].(*adapter.PermitRecord)
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(string(p.PermitNumber), convey.ShouldEqual, "20260042")

			notices, err := adapter.Decode(model.SourceNotice, []byte(`[{"notice_id": 17, "headline": "Hearing"}]`))
			convey.So(err, convey.ShouldBeNil)
			n, ok := notices[0].(*adapter.NoticeRecord)
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(string(n.NoticeID), convey.ShouldEqual, "17")
		})

		convey.Convey("When an id is neither a string nor a number", func() {
			recs, err := adapter.Decode(model.SourceMeeting, []byte(`[{"id": {"x": 1}, "title": "Council meeting"}]`))
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then only that item is malformed", func() {
				_, ok := recs[0].(*adapter.Malformed)
				convey.So(ok, convey.ShouldBeTrue)
			})
		})
	})
}

func TestAdapterSkips(t *testing.T) {
	convey.Convey("Given the default registry", t, func() {
		reg := adapter.Default(extract.NewHeuristic())
		cfg := meetingConfig()

		convey.Convey("When a record has no title", func() {
			recs, _ := adapter.Decode(model.SourceMeeting, []byte(`[{"id":"1"}]`))
			_, err := reg.Adapt(recs[0], cfg)
			convey.So(errors.Is(err, adapter.ErrSkip), convey.ShouldBeTrue)
		})

		convey.Convey("When a record has no natural key", func() {
			recs, _ := adapter.Decode(model.SourceMeeting, []byte(`[{"title":"Council"}]`))
			_, err := reg.Adapt(recs[0], cfg)
			convey.So(errors.Is(err, adapter.ErrSkip), convey.ShouldBeTrue)
		})

		convey.Convey("When a record does not decode", func() {
			recs, err := adapter.Decode(model.SourceMeeting, []byte(`[{"id":"1","title":"ok","date":"someday"}, {"id":"2","title":"fine"}]`))
			convey.So(err, convey.ShouldBeNil)
			convey.So(recs, convey.ShouldHaveLength, 2)

			_, err = reg.Adapt(recs[0], cfg)
			convey.So(errors.Is(err, adapter.ErrSkip), convey.ShouldBeTrue)
			_, err = reg.Adapt(recs[1], cfg)
			convey.So(err, convey.ShouldBeNil)
		})

		convey.Convey("When a permit record reaches the meeting adapter", func() {
			_, err := reg.Adapt(&adapter.PermitRecord{PermitNumber: "B-1", Title: "Deck"}, cfg)
			convey.So(errors.Is(err, adapter.ErrSkip), convey.ShouldBeTrue)
		})

		convey.Convey("When the payload isn't an array", func() {
			_, err := adapter.Decode(model.SourceMeeting, []byte(`{"id":"1"}`))
			convey.So(errors.Is(err, adapter.ErrDecode), convey.ShouldBeTrue)
		})

		convey.Convey("When the extractor panics", func() {
			boom := extract.Func(func(string) extract.Result { panic("boom") })
			recs, _ := adapter.Decode(model.SourceMeeting, []byte(rezoningMeeting))
			ev, err := adapter.Default(boom).Adapt(recs[0], cfg)

			convey.Convey("Then the event is still produced with configured tags only", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(ev.Tags, convey.ShouldResemble, []string{"meeting", "planning", "rezoning"})
				convey.So(ev.Entities, convey.ShouldResemble, []model.Entity{{Name: "Planning Commission", Kind: model.EntityOrganization}})
			})
		})
	})
}

func TestPermitAdapter(t *testing.T) {
	convey.Convey("Given a permit source", t, func() {
		reg := adapter.Default(extract.NewHeuristic())
		cfg := model.SourceConfig{ID: "county-permits", Type: model.SourcePermit, URL: "https://example.gov/permits"}

		convey.Convey("When the permit is still under review", func() {
			recs, _ := adapter.Decode(model.SourcePermit, []byte(`[{"permit_number":"BLD-2026-0042","permit_type":"Demolition","status":"Under Review","filed_date":"2026-10-01","address":"77 Oak Ave","applicant":"Acme Corp"}]`))
			ev, err := reg.Adapt(recs[0], cfg)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then it is an application titled from its type", func() {
				convey.So(ev.EventType, convey.ShouldEqual, model.EventPermitApplication)
				convey.So(ev.Title, convey.ShouldEqual, "Demolition permit BLD-2026-0042")
				convey.So(ev.Timestamp, convey.ShouldEqual, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC))
				convey.So(ev.Tags, convey.ShouldContain, "demolition")
				convey.So(ev.Tags, convey.ShouldContain, "permit")
				convey.So(ev.Location.Address, convey.ShouldEqual, "77 Oak Ave")
			})

			convey.Convey("And when it is issued later", func() {
				later, _ := adapter.Decode(model.SourcePermit, []byte(`[{"permit_number":"BLD-2026-0042","permit_type":"Demolition","status":"Issued","filed_date":"2026-10-01","issued_date":"2026-10-20","address":"77 Oak Ave","applicant":"Acme Corp"}]`))
				issued, err := reg.Adapt(later[0], cfg)
				convey.So(err, convey.ShouldBeNil)

				convey.Convey("Then the id is stable but type and hash change", func() {
					convey.So(issued.EventID, convey.ShouldEqual, ev.EventID)
					convey.So(issued.EventType, convey.ShouldEqual, model.EventPermitIssued)
					convey.So(issued.Timestamp, convey.ShouldEqual, time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC))
					convey.So(issued.ContentHash, convey.ShouldNotEqual, ev.ContentHash)
				})
			})
		})

		convey.Convey("When the permit has neither title nor type", func() {
			recs, _ := adapter.Decode(model.SourcePermit, []byte(`[{"permit_number":"X-1"}]`))
			_, err := reg.Adapt(recs[0], cfg)
			convey.So(errors.Is(err, adapter.ErrSkip), convey.ShouldBeTrue)
		})
	})
}

func TestNoticeAdapter(t *testing.T) {
	convey.Convey("Given a notice with a hearing date", t, func() {
		reg := adapter.Default(extract.NewHeuristic())
		cfg := model.SourceConfig{ID: "legal-notices", Type: model.SourceNotice, Path: "testdata/notices.json"}
		recs, err := adapter.Decode(model.SourceNotice, []byte(`[{"headline":"Notice of Public Hearing: Variance V-2026-7","body":"A variance for 9 Pine Rd.","published":"2026-10-10T09:00:00Z","hearing_date":"2026-11-12T19:00:00Z","url":"https://example.gov/n/77"}]`))
		convey.So(err, convey.ShouldBeNil)

		ev, err := reg.Adapt(recs[0], cfg)
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("Then it is a hearing keyed by its URL", func() {
			convey.So(ev.EventType, convey.ShouldEqual, model.EventPublicNotice)
			convey.So(ev.EventID, convey.ShouldEqual, adapter.EventID("legal-notices", model.SourceNotice, "https://example.gov/n/77"))
			convey.So(ev.Timestamp, convey.ShouldEqual, time.Date(2026, 11, 12, 19, 0, 0, 0, time.UTC))
			convey.So(ev.Tags, convey.ShouldContain, "hearing")
			convey.So(ev.Tags, convey.ShouldContain, "variance")
			convey.So(ev.IsUpcomingKind(), convey.ShouldBeTrue)
			convey.So(ev.Documents, convey.ShouldContain, model.Document{URL: "https://example.gov/n/77", Type: "notice"})
		})
	})
}

func TestEventID(t *testing.T) {
	convey.Convey("Event ids are stable and scoped by source and kind", t, func() {
		a := adapter.EventID("s1", model.SourceMeeting, "42")
		convey.So(adapter.EventID("s1", model.SourceMeeting, "42"), convey.ShouldEqual, a)
		convey.So(adapter.EventID("s2", model.SourceMeeting, "42"), convey.ShouldNotEqual, a)
		convey.So(adapter.EventID("s1", model.SourcePermit, "42"), convey.ShouldNotEqual, a)
	})
}

func TestParseTime(t *testing.T) {
	convey.Convey("Portal date layouts are accepted", t, func() {
		want := time.Date(2026, 11, 3, 0, 0, 0, 0, time.UTC)
		for _, s := range []string{"2026-11-03", "11/03/2026", "2026-11-03T00:00:00Z", "1793664000"} {
			got, err := adapter.ParseTime(s)
			convey.So(err, convey.ShouldBeNil)
			convey.So(got, convey.ShouldEqual, want)
		}
		_, err := adapter.ParseTime("next tuesday")
		convey.So(err, convey.ShouldNotBeNil)
	})
}
