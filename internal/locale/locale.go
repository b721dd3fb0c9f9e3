// Package locale holds the active display language and its message dictionaries.
package locale

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/text/language"
)

// Locale is one of the supported display languages.
type Locale string

const (
	Uzbek   Locale = "uz"
	Russian Locale = "ru"
	English Locale = "en"
)

// DefaultLocale is active until something selects another one.
const DefaultLocale = Russian

// ErrUnsupportedLocale is returned when selecting a locale outside Supported.
var ErrUnsupportedLocale = errors.New("unsupported locale")

var (
	supported = []Locale{Uzbek, Russian, English}
	matcher   = language.NewMatcher([]language.Tag{
		language.Russian, // first tag is the matcher fallback
		language.Uzbek,
		language.English,
	})
)

// Supported returns the supported locales in display order.
func Supported() []Locale {
	out := make([]Locale, len(supported))
	copy(out, supported)
	return out
}

// Valid reports whether l is supported.
func (l Locale) Valid() bool {
	_, ok := dictionaries[l]
	return ok
}

func (l Locale) String() string {
	return string(l)
}

// Parse maps a BCP 47 tag such as "uz-Latn-UZ" or "EN" onto a supported locale.
func Parse(s string) (Locale, error) {
	tag, err := language.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLocale, s)
	}
	base, _ := tag.Base()
	loc := Locale(base.String())
	if !loc.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLocale, s)
	}
	return loc, nil
}

// Match picks the best supported locale for an Accept-Language header value.
// Unparseable or unmatched headers yield DefaultLocale.
func Match(acceptLanguage string) Locale {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return DefaultLocale
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return DefaultLocale
	}
	return []Locale{Russian, Uzbek, English}[idx]
}

// Store holds the active locale. The zero value is not usable; call NewStore.
type Store struct {
	mu      sync.RWMutex
	current Locale
}

// NewStore returns a store initialised to initial, which must be supported.
func NewStore(initial Locale) (*Store, error) {
	if !initial.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLocale, initial)
	}
	return &Store{current: initial}, nil
}

// Set switches the active locale. An unsupported value is rejected and the
// current locale is left unchanged.
func (s *Store) Set(l Locale) error {
	if !l.Valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedLocale, l)
	}
	s.mu.Lock()
	s.current = l
	s.mu.Unlock()
	return nil
}

// MustSet is Set for values known at compile time.
func (s *Store) MustSet(l Locale) {
	if err := s.Set(l); err != nil {
		panic(err)
	}
}

// Current returns the active locale.
func (s *Store) Current() Locale {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Messages returns the dictionary of the active locale.
func (s *Store) Messages() Messages {
	return dictionaries[s.Current()]
}

// Message returns one string in the active locale.
func (s *Store) Message(id MessageID) string {
	return s.Messages().Get(id)
}

// MessagesFor returns the dictionary of l without touching any store.
func MessagesFor(l Locale) (Messages, error) {
	msgs, ok := dictionaries[l]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLocale, l)
	}
	return msgs, nil
}

var defaultStore = &Store{current: DefaultLocale}

// Default returns the process-wide store.
func Default() *Store {
	return defaultStore
}
