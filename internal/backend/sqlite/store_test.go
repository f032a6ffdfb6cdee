package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Metaculus/metaculus-sub005/internal/backend"
	"github.com/Metaculus/metaculus-sub005/internal/keyfactor"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "keyfactors.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func driver(text string) *keyfactor.DriverDraft {
	return &keyfactor.DriverDraft{Text: text, Impact: keyfactor.Impact{Direction: keyfactor.DirectionIncrease}}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestOpenTwiceSkipsAppliedMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keyfactors.db")
	first, err := Open(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	second, err := Open(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	_ = second.Close()
}

func TestCreateCommentRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	news := &keyfactor.NewsDraft{URL: "https://example.com/a", Title: "Rain returns"}
	record, factors, err := store.CreateComment(ctx, backend.CommentRecord{
		PostID: 7, AuthorID: 3, Text: "Forecast reasoning", CreatedAt: at,
	}, []keyfactor.Draft{driver("Seasonal forecasts point to a wet spring"), news})
	if err != nil {
		t.Fatalf("create comment: %v", err)
	}
	if record.ID == 0 {
		t.Fatal("expected comment id")
	}
	if len(factors) != 2 || factors[0].ID == 0 || factors[1].ID <= factors[0].ID {
		t.Fatalf("unexpected factors: %+v", factors)
	}

	got, err := store.GetComment(ctx, record.ID)
	if err != nil {
		t.Fatalf("get comment: %v", err)
	}
	if got.Text != "Forecast reasoning" || !got.CreatedAt.Equal(at) {
		t.Fatalf("comment = %+v", got)
	}

	listed, err := store.ListKeyFactors(ctx, 7, 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("listed = %d, want 2", len(listed))
	}
	d, ok := listed[0].Draft.(*keyfactor.DriverDraft)
	if !ok || d.Text != "Seasonal forecasts point to a wet spring" {
		t.Fatalf("driver not decoded: %#v", listed[0].Draft)
	}
	if listed[1].Kind() != keyfactor.KindNews || listed[1].CommentID != record.ID {
		t.Fatalf("news factor = %+v", listed[1])
	}
}

func TestGetCommentMissing(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.GetComment(context.Background(), 404); !errors.Is(err, backend.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := store.AddKeyFactors(context.Background(), 404, []keyfactor.Draft{driver("x")}, time.Time{}); !errors.Is(err, backend.ErrNotFound) {
		t.Fatalf("add err = %v, want ErrNotFound", err)
	}
}

func TestAddKeyFactorsInheritsAuthor(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	record, _, err := store.CreateComment(ctx, backend.CommentRecord{PostID: 1, AuthorID: 9, Text: "c"}, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	added, err := store.AddKeyFactors(ctx, record.ID, []keyfactor.Draft{driver("Later evidence arrived today")}, time.Now())
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(added) != 1 || added[0].AuthorID != 9 || added[0].PostID != 1 {
		t.Fatalf("added = %+v", added)
	}
}

func TestPrivateCommentsHiddenFromOthers(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if _, _, err := store.CreateComment(ctx, backend.CommentRecord{PostID: 1, AuthorID: 1, Text: "public"},
		[]keyfactor.Draft{driver("Public factor with enough text")}); err != nil {
		t.Fatalf("create public: %v", err)
	}
	if _, _, err := store.CreateComment(ctx, backend.CommentRecord{PostID: 1, AuthorID: 2, Text: "private", IsPrivate: true},
		[]keyfactor.Draft{driver("Private factor with enough text")}); err != nil {
		t.Fatalf("create private: %v", err)
	}

	asOther, err := store.ListKeyFactors(ctx, 1, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(asOther) != 1 {
		t.Fatalf("viewer 1 sees %d factors, want 1", len(asOther))
	}
	asAuthor, err := store.ListKeyFactors(ctx, 1, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(asAuthor) != 2 {
		t.Fatalf("author sees %d factors, want 2", len(asAuthor))
	}
}

func TestSetVoteAggregates(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	_, factors, err := store.CreateComment(ctx, backend.CommentRecord{PostID: 1, AuthorID: 1, Text: "c"},
		[]keyfactor.Draft{driver("Voting target with enough text")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := factors[0].ID
	now := time.Now()
	if err := store.SetVote(ctx, id, 10, keyfactor.VoteStrength, 2, now); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if err := store.SetVote(ctx, id, 11, keyfactor.VoteStrength, 5, now); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if err := store.SetVote(ctx, id, 10, keyfactor.VoteStrength, 1, now); err != nil {
		t.Fatalf("revote: %v", err)
	}

	kf, err := store.GetKeyFactor(ctx, id, 10)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if kf.Vote.Score != 6 || kf.Vote.Count != 2 || kf.Vote.UserVote != 1 {
		t.Fatalf("vote = %+v", kf.Vote)
	}

	if err := store.SetVote(ctx, id, 10, keyfactor.VoteStrength, 0, now); err != nil {
		t.Fatalf("clear: %v", err)
	}
	kf, err = store.GetKeyFactor(ctx, id, 10)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if kf.Vote.Score != 5 || kf.Vote.Count != 1 || kf.Vote.UserVote != 0 {
		t.Fatalf("vote after clear = %+v", kf.Vote)
	}
}

func TestSetVoteUnknownKeyFactor(t *testing.T) {
	store := openTestStore(t)
	err := store.SetVote(context.Background(), 999, 1, keyfactor.VoteDirection, 1, time.Now())
	if !errors.Is(err, backend.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := store.GetKeyFactor(context.Background(), 999, 1); !errors.Is(err, backend.ErrNotFound) {
		t.Fatalf("get err = %v, want ErrNotFound", err)
	}
}

func TestCanceledContext(t *testing.T) {
	store := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.ListKeyFactors(ctx, 1, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestUpSection(t *testing.T) {
	got := upSection("-- +migrate Up\nCREATE TABLE a(x);\n-- +migrate Down\nDROP TABLE a;\n")
	if got != "\nCREATE TABLE a(x);\n" {
		t.Fatalf("up = %q", got)
	}
}
