package history

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"

	"ecovision/api/internal/analysis"
	"ecovision/api/internal/store"
)

const DefaultKey = "ecovision_history"

// KeyFor: отдельный документ истории на чат/клиента.
func KeyFor(scope string) string {
	if scope == "" {
		return DefaultKey
	}
	return DefaultKey + ":" + scope
}

// ID принимает и старые числовые id (миллисекунды), и строковые ULID.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("history: id must be string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

type Entry struct {
	ID     ID              `json:"id"`
	Image  string          `json:"image"`
	Result analysis.Result `json:"results"`
	Date   time.Time       `json:"date"`
}

// NewEntry: запись с новым ULID; время берётся из now, а не из результата.
func NewEntry(imageDataURI string, r analysis.Result, now time.Time) Entry {
	return Entry{
		ID:     ID(ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()),
		Image:  imageDataURI,
		Result: r,
		Date:   now.UTC(),
	}
}

// LegacyID форматирует числовой id так же, как его писал старый клиент.
func LegacyID(ms int64) ID { return ID(strconv.FormatInt(ms, 10)) }

type Store struct {
	kv  store.KV
	key string
	log *slog.Logger
}

func NewStore(kv store.KV, key string, log *slog.Logger) *Store {
	if key == "" {
		key = DefaultKey
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{kv: kv, key: key, log: log}
}

func (s *Store) Key() string { return s.key }

// Load никогда не возвращает ошибку: пустой, битый или недоступный документ = пустая история.
func (s *Store) Load(ctx context.Context) []Entry {
	entries, err := s.load(ctx)
	if err != nil {
		s.log.Warn("history read failed, using empty history", "key", s.key, "error", err)
		return []Entry{}
	}
	return entries
}

// load отдаёт ошибку чтения хранилища; битый документ по-прежнему = пустая история.
// Писатели (Append, Remove) не должны перезаписывать историю после неудачного чтения.
func (s *Store) load(ctx context.Context) ([]Entry, error) {
	raw, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("history: read %s: %w", s.key, err)
	}
	if !ok || raw == "" {
		return []Entry{}, nil
	}
	var entries []Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		s.log.Warn("history document is malformed, using empty history", "key", s.key, "error", err)
		return []Entry{}, nil
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

func (s *Store) Save(ctx context.Context, entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("history: encode: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, string(b)); err != nil {
		return fmt.Errorf("history: write %s: %w", s.key, err)
	}
	return nil
}

// Append кладёт запись в начало (самые свежие первыми).
func (s *Store) Append(ctx context.Context, e Entry) error {
	cur, err := s.load(ctx)
	if err != nil {
		return err
	}
	next := make([]Entry, 0, len(cur)+1)
	next = append(next, e)
	next = append(next, cur...)
	return s.Save(ctx, next)
}

// Remove идемпотентен: отсутствующий id не ошибка.
func (s *Store) Remove(ctx context.Context, id ID) error {
	cur, err := s.load(ctx)
	if err != nil {
		return err
	}
	next := make([]Entry, 0, len(cur))
	for _, e := range cur {
		if e.ID != id {
			next = append(next, e)
		}
	}
	return s.Save(ctx, next)
}

func (s *Store) Find(ctx context.Context, id ID) (Entry, bool) {
	for _, e := range s.Load(ctx) {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}
