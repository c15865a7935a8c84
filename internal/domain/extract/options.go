package extract

// Option configures a Heuristic.
type Option func(*Heuristic)

// WithVocabulary replaces the tag vocabulary. A nil map disables keyword tags.
func WithVocabulary(vocab map[string][]string) Option {
	return func(h *Heuristic) {
		h.vocab = vocab
	}
}
