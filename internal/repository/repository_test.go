package repository

import (
	"context"
	"errors"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"codecollab/internal/db"
	"codecollab/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// a single connection keeps the in-memory database alive and shared
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func TestCreateMakesOwner(t *testing.T) {
	gdb := newTestDB(t)
	docs := NewDocumentRepository(gdb)
	members := NewMemberRepository(gdb)
	ctx := context.Background()

	doc, err := docs.Create(ctx, &models.DocumentCreate{Title: "X", Content: "print(1)"}, "alice")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(doc.ID) != 27 {
		t.Errorf("ID = %q, want a KSUID", doc.ID)
	}

	role, err := members.GetRole(ctx, doc.ID, "alice")
	if err != nil {
		t.Fatalf("GetRole: %v", err)
	}
	if role != models.RoleOwner {
		t.Errorf("role = %q, want owner", role)
	}

	got, err := docs.GetByID(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Title != "X" || got.Content != "print(1)" {
		t.Errorf("got %+v", got)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	docs := NewDocumentRepository(newTestDB(t))

	_, err := docs.GetByID(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestUpdateAndUpdateContent(t *testing.T) {
	gdb := newTestDB(t)
	docs := NewDocumentRepository(gdb)
	ctx := context.Background()

	doc, err := docs.Create(ctx, &models.DocumentCreate{Title: "X", Content: "a"}, "alice")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	title := "Y"
	if _, err := docs.Update(ctx, doc.ID, &models.DocumentUpdate{Title: &title}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := docs.UpdateContent(ctx, doc.ID, "b"); err != nil {
		t.Fatalf("UpdateContent: %v", err)
	}

	got, err := docs.GetByID(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Title != "Y" || got.Content != "b" {
		t.Errorf("got title %q content %q", got.Title, got.Content)
	}

	if err := docs.UpdateContent(ctx, "missing", "c"); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateContent on missing = %v, want ErrNotFound", err)
	}
}

func TestListForUserAndMembers(t *testing.T) {
	gdb := newTestDB(t)
	docs := NewDocumentRepository(gdb)
	members := NewMemberRepository(gdb)
	ctx := context.Background()

	a, _ := docs.Create(ctx, &models.DocumentCreate{Title: "A"}, "alice")
	b, _ := docs.Create(ctx, &models.DocumentCreate{Title: "B"}, "bob")

	if _, err := members.AddMember(ctx, b.ID, "alice", models.RoleViewer); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	// re-sharing replaces the role
	if _, err := members.AddMember(ctx, b.ID, "alice", models.RoleEditor); err != nil {
		t.Fatalf("AddMember again: %v", err)
	}

	role, err := members.GetRole(ctx, b.ID, "alice")
	if err != nil || role != models.RoleEditor {
		t.Fatalf("GetRole = %q, %v; want editor", role, err)
	}

	list, err := docs.ListForUser(ctx, "alice", 10, 0)
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("alice sees %d documents, want 2", len(list))
	}
	ids := map[string]bool{list[0].ID: true, list[1].ID: true}
	if !ids[a.ID] || !ids[b.ID] {
		t.Errorf("unexpected documents %v", ids)
	}

	list, _ = docs.ListForUser(ctx, "bob", 10, 0)
	if len(list) != 1 || list[0].ID != b.ID {
		t.Errorf("bob sees %v", list)
	}

	all, err := members.ListMembers(ctx, b.ID)
	if err != nil || len(all) != 2 {
		t.Errorf("ListMembers = %v, %v", all, err)
	}

	if _, err := members.GetRole(ctx, a.ID, "bob"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRole for non-member = %v, want ErrNotFound", err)
	}
}

func TestDocumentSchema(t *testing.T) {
	gdb := newTestDB(t)

	for _, col := range []string{"id", "title", "content", "created_at", "updated_at"} {
		if !gdb.Migrator().HasColumn(&models.Document{}, col) {
			t.Errorf("documents table is missing %s", col)
		}
	}
	// documents are never deleted, so there is no soft-delete column
	if gdb.Migrator().HasColumn(&models.Document{}, "deleted_at") {
		t.Error("documents table has a deleted_at column")
	}
}
