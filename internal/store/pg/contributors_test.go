package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func contributorColumns() []string {
	return []string{
		"id", "user_id", "level", "status",
		"created_by", "approved_by", "approved_at", "notes",
		"created_at", "updated_at",
	}
}

func TestCreateContributor(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("insert into community_contributors").
		WithArgs(sqlmock.AnyArg(), "user-7", 2, "core-1", "trial run").
		WillReturnRows(sqlmock.NewRows(contributorColumns()).
			AddRow("01HZX", "user-7", 2, "pending", "core-1", nil, nil, "trial run", now, now))

	c, err := store.CreateContributor(context.Background(), "user-7", 2, "core-1", "trial run")
	if err != nil {
		t.Fatalf("CreateContributor: %v", err)
	}
	if c.Status != "pending" {
		t.Fatalf("new contributor should be pending, got %s", c.Status)
	}
	if c.Level != 2 {
		t.Fatalf("unexpected level: %d", c.Level)
	}
	if c.ApprovedBy != nil || c.ApprovedAt != nil {
		t.Fatalf("pending contributor should have no approval fields: %+v", c)
	}
}

func TestApproveContributor(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("update community_contributors").
		WithArgs("01HZX", "core-1").
		WillReturnRows(sqlmock.NewRows(contributorColumns()).
			AddRow("01HZX", "user-7", 2, "approved", "core-1", "core-1", now, nil, now, now))

	c, err := store.ApproveContributor(context.Background(), "01HZX", "core-1")
	if err != nil {
		t.Fatalf("ApproveContributor: %v", err)
	}
	if c.Status != "approved" {
		t.Fatalf("expected approved, got %s", c.Status)
	}
	if c.ApprovedBy == nil || *c.ApprovedBy != "core-1" {
		t.Fatalf("approved_by not set: %+v", c.ApprovedBy)
	}
}

func TestApproveContributorNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("update community_contributors").
		WithArgs("missing", "core-1").
		WillReturnRows(sqlmock.NewRows(contributorColumns()))

	if _, err := store.ApproveContributor(context.Background(), "missing", "core-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPendingMessages(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("select id, content, status, created_at").
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "content", "status", "created_at"}).
			AddRow("m1", "hello", "pending", now).
			AddRow("m2", "world", "pending", now))

	msgs, err := store.PendingMessages(context.Background(), 50)
	if err != nil {
		t.Fatalf("PendingMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
}

func TestSetMessageStatus(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("update broadcast_messages").
		WithArgs("m1", MessageHidden).
		WillReturnRows(sqlmock.NewRows([]string{"id", "content", "status", "created_at"}).
			AddRow("m1", "hello", "hidden", now))

	m, err := store.SetMessageStatus(context.Background(), "m1", MessageHidden)
	if err != nil {
		t.Fatalf("SetMessageStatus: %v", err)
	}
	if m.Status != MessageHidden {
		t.Fatalf("unexpected status: %s", m.Status)
	}
}
