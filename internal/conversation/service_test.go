package conversation

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

const (
	testAccountID      = "00000000-0000-0000-0000-00000000000a"
	testConversationID = "00000000-0000-0000-0000-00000000000b"
)

// fakeRow implements pgx.Row with a custom scan function.
type fakeRow struct {
	scanFunc func(dest ...any) error
}

func (r *fakeRow) Scan(dest ...any) error { return r.scanFunc(dest...) }

// fakeQuerier implements db.Querier for unit testing.
type fakeQuerier struct {
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	execFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (q *fakeQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if q.execFunc != nil {
		return q.execFunc(ctx, sql, args...)
	}
	return pgconn.CommandTag{}, nil
}

func (q *fakeQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, pgx.ErrNoRows
}

func (q *fakeQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if q.queryRowFunc != nil {
		return q.queryRowFunc(ctx, sql, args...)
	}
	return makeNoRow()
}

func makeNoRow() *fakeRow {
	return &fakeRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
}

func mustUUID(s string) pgtype.UUID {
	var u pgtype.UUID
	_ = u.Scan(s)
	return u
}

// makeConversationRow creates a fakeRow populating the conversation columns.
func makeConversationRow(waID, profileName string) *fakeRow {
	return &fakeRow{
		scanFunc: func(dest ...any) error {
			if len(dest) < 9 {
				return pgx.ErrNoRows
			}
			*dest[0].(*pgtype.UUID) = mustUUID(testConversationID)
			*dest[1].(*pgtype.UUID) = mustUUID(testAccountID)
			*dest[2].(*string) = waID
			*dest[3].(*string) = "+" + waID
			*dest[4].(*pgtype.Text) = pgtype.Text{String: profileName, Valid: profileName != ""}
			*dest[5].(*pgtype.UUID) = pgtype.UUID{}
			*dest[6].(*int) = 0
			*dest[7].(*pgtype.Timestamptz) = pgtype.Timestamptz{}
			*dest[8].(*pgtype.Timestamptz) = pgtype.Timestamptz{}
			return nil
		},
	}
}

func TestResolveRefreshesProfileName(t *testing.T) {
	t.Parallel()
	var gotSQL string
	var gotArgs []any
	db := &fakeQuerier{
		queryRowFunc: func(_ context.Context, sql string, args ...any) pgx.Row {
			if strings.Contains(sql, "INSERT") {
				t.Errorf("existing conversation must not be re-created")
				return makeNoRow()
			}
			return makeConversationRow("41791112233", "Old Name")
		},
		execFunc: func(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			gotSQL = sql
			gotArgs = args
			return pgconn.NewCommandTag("UPDATE 1"), nil
		},
	}
	svc := NewService(nil, db, nil)

	conv, err := svc.Resolve(context.Background(), testAccountID, "41791112233", "New Name")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if !strings.Contains(gotSQL, "profile_name") {
		t.Fatalf("refresh update does not set profile_name: %q", gotSQL)
	}
	if len(gotArgs) < 2 || gotArgs[1] != "New Name" {
		t.Fatalf("refresh args = %v", gotArgs)
	}
	if conv.ProfileName != "New Name" {
		t.Fatalf("Resolve() profile name = %q", conv.ProfileName)
	}
}

func TestResolveKeepsProfileNameWhenUnchanged(t *testing.T) {
	t.Parallel()
	execs := 0
	db := &fakeQuerier{
		queryRowFunc: func(_ context.Context, _ string, _ ...any) pgx.Row {
			return makeConversationRow("41791112233", "Same Name")
		},
		execFunc: func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
			execs++
			return pgconn.NewCommandTag("UPDATE 1"), nil
		},
	}
	svc := NewService(nil, db, nil)

	conv, err := svc.Resolve(context.Background(), testAccountID, "41791112233", "Same Name")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if execs != 0 {
		t.Fatalf("unchanged profile name triggered %d updates", execs)
	}
	if conv.ProfileName != "Same Name" {
		t.Fatalf("Resolve() profile name = %q", conv.ProfileName)
	}
}

func TestResolveKeepsProfileNameWhenEmpty(t *testing.T) {
	t.Parallel()
	execs := 0
	db := &fakeQuerier{
		queryRowFunc: func(_ context.Context, _ string, _ ...any) pgx.Row {
			return makeConversationRow("41791112233", "Kept Name")
		},
		execFunc: func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
			execs++
			return pgconn.NewCommandTag("UPDATE 1"), nil
		},
	}
	svc := NewService(nil, db, nil)

	conv, err := svc.Resolve(context.Background(), testAccountID, "41791112233", "")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if execs != 0 {
		t.Fatalf("empty profile name triggered %d updates", execs)
	}
	if conv.ProfileName != "Kept Name" {
		t.Fatalf("Resolve() profile name = %q", conv.ProfileName)
	}
}

func TestResolveCreatesOnFirstContact(t *testing.T) {
	t.Parallel()
	db := &fakeQuerier{
		queryRowFunc: func(_ context.Context, sql string, _ ...any) pgx.Row {
			if strings.Contains(sql, "INSERT") {
				return makeConversationRow("41791112233", "First Name")
			}
			return makeNoRow()
		},
	}
	svc := NewService(nil, db, nil)

	conv, err := svc.Resolve(context.Background(), testAccountID, "41791112233", "First Name")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if conv.WaID != "41791112233" || conv.ID != testConversationID {
		t.Fatalf("Resolve() conversation = %+v", conv)
	}
}

func TestResolveRefetchesAfterInsertConflict(t *testing.T) {
	t.Parallel()
	selects := 0
	db := &fakeQuerier{
		queryRowFunc: func(_ context.Context, sql string, _ ...any) pgx.Row {
			if strings.Contains(sql, "INSERT") {
				// ON CONFLICT DO NOTHING yields no row to the loser.
				return makeNoRow()
			}
			selects++
			if selects == 1 {
				return makeNoRow()
			}
			return makeConversationRow("41791112233", "Winner Name")
		},
	}
	svc := NewService(nil, db, nil)

	conv, err := svc.Resolve(context.Background(), testAccountID, "41791112233", "Winner Name")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if selects != 2 {
		t.Fatalf("selects = %d, want first lookup plus post-conflict refetch", selects)
	}
	if conv.ID != testConversationID {
		t.Fatalf("Resolve() conversation id = %q", conv.ID)
	}
}

func TestMarkReadUnknownConversation(t *testing.T) {
	t.Parallel()
	db := &fakeQuerier{
		execFunc: func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		},
	}
	svc := NewService(nil, db, nil)

	if err := svc.MarkRead(context.Background(), testConversationID); err != ErrNotFound {
		t.Fatalf("MarkRead() error = %v, want ErrNotFound", err)
	}
}
