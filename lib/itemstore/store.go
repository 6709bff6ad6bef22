package itemstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	_ "embed"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

var tracer = otel.Tracer("scrapeflow/lib/itemstore")

var ErrNotFound = errors.New("item not found")

// Item is one scraped record, it is unique by collection and key.
type Item struct {
	ID         uuid.UUID
	Collection string
	Key        string
	Data       map[string]any
	ScrapedAt  time.Time
}

// Record is the input of Save.
type Record struct {
	Key  string
	Data map[string]any
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(database *sql.DB) Store {
	return Store{db: database, now: time.Now}
}

// Open opens (or creates) the sqlite database at path and applies the
// schema, ":memory:" gives a throwaway database.
func Open(path string) (Store, error) {
	database, err := sql.Open("sqlite", path)
	if err != nil {
		return Store{}, err
	}
	// every connection to ":memory:" is a different database
	database.SetMaxOpenConns(1)
	_, err = database.Exec(Schema)
	if err != nil {
		database.Close()
		return Store{}, err
	}
	return NewStore(database), nil
}

func (s Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (Item, error) {
	var item Item
	var id, data string
	var scrapedAt int64
	err := row.Scan(&id, &item.Collection, &item.Key, &data, &scrapedAt)
	if err != nil {
		return Item{}, err
	}
	item.ID, err = uuid.Parse(id)
	if err != nil {
		return Item{}, err
	}
	err = json.Unmarshal([]byte(data), &item.Data)
	if err != nil {
		return Item{}, err
	}
	item.ScrapedAt = time.UnixMilli(scrapedAt)
	return item, nil
}

// CreateOne stores data under key unless the key already exists, the
// returned item is whatever is stored afterwards and created reports
// whether it was inserted by this call.
func (s Store) CreateOne(ctx context.Context, collection, key string, data map[string]any) (item Item, created bool, err error) {
	ctx, span := tracer.Start(ctx, "itemstore:CreateOne")
	defer span.End()

	encoded, err := json.Marshal(data)
	if err != nil {
		return Item{}, false, err
	}
	res, err := s.db.ExecContext(
		ctx,
		`insert into items (id, collection, item_key, data, scraped_at) values (?, ?, ?, ?, ?)
		on conflict (collection, item_key) do nothing`,
		uuid.NewString(), collection, key, string(encoded), s.now().UnixMilli(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to insert item")
		return Item{}, false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Item{}, false, err
	}

	item, err = s.GetOne(ctx, collection, key)
	if err != nil {
		return Item{}, false, err
	}
	return item, affected > 0, nil
}

func (s Store) GetOne(ctx context.Context, collection, key string) (Item, error) {
	ctx, span := tracer.Start(ctx, "itemstore:GetOne")
	defer span.End()

	row := s.db.QueryRowContext(
		ctx,
		"select id, collection, item_key, data, scraped_at from items where collection = ? and item_key = ?",
		collection, key,
	)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, key)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get item")
		return Item{}, err
	}
	return item, nil
}

// Save upserts every record in one transaction, existing items keep their
// id and get the new data.
func (s Store) Save(ctx context.Context, collection string, records []Record) error {
	ctx, span := tracer.Start(ctx, "itemstore:Save")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("records", len(records)),
	)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := s.now().UnixMilli()
	for _, record := range records {
		encoded, err := json.Marshal(record.Data)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(
			ctx,
			`insert into items (id, collection, item_key, data, scraped_at) values (?, ?, ?, ?, ?)
			on conflict (collection, item_key) do update set data = excluded.data, scraped_at = excluded.scraped_at`,
			uuid.NewString(), collection, record.Key, string(encoded), now,
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to save item")
			return err
		}
	}
	return tx.Commit()
}

// List returns the items of a collection, oldest first.
func (s Store) List(ctx context.Context, collection string) ([]Item, error) {
	ctx, span := tracer.Start(ctx, "itemstore:List")
	defer span.End()

	rows, err := s.db.QueryContext(
		ctx,
		"select id, collection, item_key, data, scraped_at from items where collection = ? order by scraped_at, item_key",
		collection,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
