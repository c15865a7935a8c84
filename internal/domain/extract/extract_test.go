package extract

import (
	"errors"
	"testing"

	"github.com/okian/civicwatch/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestHeuristicExtract(t *testing.T) {
	Convey("Given the default heuristic extractor", t, func() {
		h := NewHeuristic()

		Convey("When extracting from a rezoning agenda item", func() {
			res := h.Extract("Planning Commission — Rezoning RZ-2026-001. Public hearing on rezoning of 12 Elm St. requested by Mayor Jane Smith.")

			Convey("Then case numbers, addresses, organizations and people are found", func() {
				So(res.Entities, ShouldContain, model.Entity{Name: "RZ-2026-001", Kind: model.EntityCaseNumber})
				So(res.Entities, ShouldContain, model.Entity{Name: "12 Elm St", Kind: model.EntityAddress})
				So(res.Entities, ShouldContain, model.Entity{Name: "Planning Commission", Kind: model.EntityOrganization})
				So(res.Entities, ShouldContain, model.Entity{Name: "Jane Smith", Kind: model.EntityPerson})
			})

			Convey("Then vocabulary tags are attached", func() {
				So(res.Tags, ShouldResemble, []string{"hearing", "planning", "rezoning"})
			})
		})

		Convey("When the same entity appears twice", func() {
			res := h.Extract("Case RZ-2026-001 continued; see RZ-2026-001 staff report.")
			Convey("Then it is reported once", func() {
				So(res.Entities, ShouldHaveLength, 1)
			})
		})

		Convey("When the text is empty", func() {
			res := h.Extract("   ")
			So(res.Entities, ShouldBeEmpty)
			So(res.Tags, ShouldBeEmpty)
		})
	})
}

func TestVocabularyOverride(t *testing.T) {
	Convey("Given a custom vocabulary", t, func() {
		h := NewHeuristic(WithVocabulary(map[string][]string{"parks": {"playground", "park"}}))
		res := h.Extract("New playground for Riverside Park")
		So(res.Tags, ShouldResemble, []string{"parks"})

		Convey("And a nil vocabulary disables keyword tags", func() {
			res := NewHeuristic(WithVocabulary(nil)).Extract("rezoning hearing")
			So(res.Tags, ShouldBeEmpty)
		})
	})
}

func TestMatchKeywords(t *testing.T) {
	Convey("Given the default vocabulary", t, func() {
		Convey("When a short keyword only appears inside longer words", func() {
			tags := MatchKeywords("Forbidden uses on the platform near the plateau", DefaultVocabulary)

			Convey("Then it does not tag the text", func() {
				So(tags, ShouldNotContain, "contract")
				So(tags, ShouldNotContain, "subdivision")
			})
		})

		Convey("When keywords appear as words, inflected or across line breaks", func() {
			tags := MatchKeywords("Bids due Friday. Final PLAT for Oak Ridge; structure demolished.\nZoning\n change requested.", DefaultVocabulary)

			Convey("Then their tags are found", func() {
				So(tags, ShouldResemble, []string{"contract", "demolition", "rezoning", "subdivision"})
			})
		})

		Convey("When keywords carry punctuation", func() {
			tags := MatchKeywords("Item 4 (C.I.P.) approved", map[string][]string{"capital": {"(c.i.p.)"}})
			So(tags, ShouldResemble, []string{"capital"})
		})
	})
}

func TestSafe(t *testing.T) {
	Convey("Given an extractor that panics", t, func() {
		boom := Func(func(string) Result { panic("bad regex state") })

		Convey("When run through Safe", func() {
			res, err := Safe(boom, "anything")

			Convey("Then it degrades to an empty result", func() {
				So(res.Entities, ShouldBeEmpty)
				So(res.Tags, ShouldBeEmpty)
				So(errors.Is(err, ErrExtract), ShouldBeTrue)
			})
		})

		Convey("When the extractor is nil", func() {
			res, err := Safe(nil, "anything")
			So(err, ShouldBeNil)
			So(res.Entities, ShouldBeEmpty)
		})
	})
}
