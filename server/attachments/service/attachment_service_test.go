package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"testing"
	"time"

	"attach_server/server/attachments/domain"
	"attach_server/server/attachments/registry"
	"attach_server/server/attachments/repository"
	"attach_server/server/attachments/validate"
)

type fakeBlobs struct {
	objects map[string][]byte
	removed []string
	putErr  error
}

func (f *fakeBlobs) Put(_ context.Context, key, _ string, r io.Reader, _ int64) error {
	if f.putErr != nil {
		return f.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[key] = data
	return nil
}

func (f *fakeBlobs) Open(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("no object %q", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeBlobs) Remove(_ context.Context, key string) error {
	f.removed = append(f.removed, key)
	delete(f.objects, key)
	return nil
}

func (f *fakeBlobs) PresignGet(_ context.Context, key, _ string, _ time.Duration) (string, error) {
	return "https://blobs.local/" + key, nil
}

type fakeRows struct {
	rows      map[string]domain.Attachment
	createErr error
	count     int64
	nextID    int
}

func newFakeRows(preloaded ...domain.Attachment) *fakeRows {
	rows := &fakeRows{rows: map[string]domain.Attachment{}}
	for _, att := range preloaded {
		rows.rows[att.ID] = att
	}
	return rows
}

func (f *fakeRows) Create(_ context.Context, _ string, att domain.Attachment) (domain.Attachment, error) {
	if f.createErr != nil {
		return domain.Attachment{}, f.createErr
	}
	f.nextID++
	att.ID = fmt.Sprintf("a%d", f.nextID)
	att.CreatedAt = time.Now().UTC()
	f.rows[att.ID] = att
	return att, nil
}

func (f *fakeRows) Get(_ context.Context, _ string, ownerID, id string) (domain.Attachment, error) {
	att, ok := f.rows[id]
	if !ok || att.OwnerID != ownerID {
		return domain.Attachment{}, repository.ErrNotFound
	}
	return att, nil
}

func (f *fakeRows) ReplaceFile(_ context.Context, _ string, id, objectKey, filename, contentType string, sizeBytes int64, thumbnailKey string) (domain.Attachment, error) {
	att, ok := f.rows[id]
	if !ok {
		return domain.Attachment{}, repository.ErrNotFound
	}
	att.ObjectKey = objectKey
	att.Filename = filename
	att.ContentType = contentType
	att.SizeBytes = sizeBytes
	att.ThumbnailKey = thumbnailKey
	f.rows[id] = att
	return att, nil
}

func (f *fakeRows) Delete(_ context.Context, _ string, ownerID, id string) error {
	att, ok := f.rows[id]
	if !ok || att.OwnerID != ownerID {
		return repository.ErrNotFound
	}
	delete(f.rows, id)
	return nil
}

func (f *fakeRows) ListByOwner(_ context.Context, _ string, ownerID string) ([]domain.Attachment, error) {
	items := make([]domain.Attachment, 0)
	for _, att := range f.rows {
		if att.OwnerID == ownerID {
			items = append(items, att)
		}
	}
	return items, nil
}

func (f *fakeRows) CountByOwner(context.Context, string, string) (int64, error) {
	return f.count, nil
}

func (f *fakeRows) OwnerExists(context.Context, string, string) (bool, error) {
	return true, nil
}

func notesModel(t *testing.T, checks ...validate.Check) *registry.Model {
	t.Helper()
	model, err := registry.New().Register(registry.ModelSpec{OwnerType: "notes", Checks: checks})
	if err != nil {
		t.Fatalf("register model: %v", err)
	}
	return model
}

func fileHeader(t *testing.T, filename, contentType string, data []byte) *multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	form, err := multipart.NewReader(&buf, w.Boundary()).ReadForm(32 << 20)
	if err != nil {
		t.Fatalf("read form: %v", err)
	}
	return form.File["file"][0]
}

func TestDeleteRemovesRowAlwaysBlobOnlyWhenEnabled(t *testing.T) {
	tests := []struct {
		name              string
		deleteFromStorage bool
		wantRemoved       int
	}{
		{"storage deletion off keeps blobs", false, 0},
		{"storage deletion on removes blob and thumbnail", true, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			att := domain.Attachment{
				ID: "a1", OwnerID: "n1",
				ObjectKey: "notes/n1/1_pic.png", ThumbnailKey: "notes/n1/1_pic_thumb.jpg",
			}
			rows := newFakeRows(att)
			blobs := &fakeBlobs{objects: map[string][]byte{
				att.ObjectKey:    []byte("blob"),
				att.ThumbnailKey: []byte("thumb"),
			}}
			svc := NewAttachmentService(rows, blobs, tt.deleteFromStorage)

			if err := svc.Delete(context.Background(), notesModel(t), att); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, ok := rows.rows[att.ID]; ok {
				t.Error("row must be removed regardless of the storage setting")
			}
			if len(blobs.removed) != tt.wantRemoved {
				t.Errorf("removed %d blobs, want %d", len(blobs.removed), tt.wantRemoved)
			}
		})
	}
}

func TestReplaceRemovesPreviousBlobOnlyWhenEnabled(t *testing.T) {
	tests := []struct {
		name              string
		deleteFromStorage bool
		wantOldRemoved    bool
	}{
		{"storage deletion off keeps the old blob", false, false},
		{"storage deletion on removes the old blob", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			existing := domain.Attachment{
				ID: "a1", OwnerID: "n1", ObjectKey: "notes/n1/1_old.txt",
				CreatorID: "u1", CreatedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
			}
			rows := newFakeRows(existing)
			blobs := &fakeBlobs{objects: map[string][]byte{existing.ObjectKey: []byte("old")}}
			svc := NewAttachmentService(rows, blobs, tt.deleteFromStorage)

			fh := fileHeader(t, "new.txt", "text/plain", []byte("new contents"))
			updated, err := svc.Replace(context.Background(), notesModel(t), existing, fh)
			if err != nil {
				t.Fatalf("Replace: %v", err)
			}
			if updated.CreatorID != existing.CreatorID || !updated.CreatedAt.Equal(existing.CreatedAt) {
				t.Error("replace must keep creator and created_at")
			}
			if _, ok := blobs.objects[updated.ObjectKey]; !ok {
				t.Errorf("new blob %q not stored", updated.ObjectKey)
			}
			_, oldKept := blobs.objects[existing.ObjectKey]
			if oldKept == tt.wantOldRemoved {
				t.Errorf("old blob kept = %v, want removed = %v", oldKept, tt.wantOldRemoved)
			}
		})
	}
}

func TestCountFallsBackToRowsWithoutCache(t *testing.T) {
	rows := newFakeRows()
	rows.count = 7
	svc := NewAttachmentService(rows, &fakeBlobs{}, false)

	count, err := svc.Count(context.Background(), notesModel(t), "n1")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 7 {
		t.Errorf("count = %d, want 7", count)
	}
}

func TestUploadCleansUpBlobWhenInsertFails(t *testing.T) {
	rows := newFakeRows()
	rows.createErr = errors.New("insert failed")
	blobs := &fakeBlobs{}
	svc := NewAttachmentService(rows, blobs, false)

	fh := fileHeader(t, "doc.txt", "text/plain", []byte("contents"))
	_, err := svc.Upload(context.Background(), notesModel(t), "n1", domain.Principal{ID: "u1"}, fh)
	if err == nil {
		t.Fatal("expected the insert failure to surface")
	}
	if len(blobs.removed) != 1 {
		t.Fatalf("removed %d blobs, want the just-written one", len(blobs.removed))
	}
	if len(blobs.objects) != 0 {
		t.Errorf("orphaned objects left in storage: %v", blobs.objects)
	}
}

func TestUploadStoresContentTypeTheWhitelistValidated(t *testing.T) {
	rows := newFakeRows()
	blobs := &fakeBlobs{}
	svc := NewAttachmentService(rows, blobs, false)
	model := notesModel(t, validate.ContentTypeWhitelist("text/plain"))

	fh := fileHeader(t, "doc.txt", "Text/Plain; charset=UTF-8", []byte("contents"))
	att, err := svc.Upload(context.Background(), model, "n1", domain.Principal{ID: "u1"}, fh)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if att.ContentType != "text/plain" {
		t.Errorf("stored content type %q, want the normalized form the whitelist checked", att.ContentType)
	}
	if att.CreatorID != "u1" {
		t.Errorf("creator = %q, want u1", att.CreatorID)
	}
}
