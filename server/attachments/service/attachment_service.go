package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	commonlog "attach_server/server/common/log"

	"attach_server/server/attachments/domain"
	"attach_server/server/attachments/registry"
	"attach_server/server/attachments/validate"
)

const presignTTL = 15 * time.Minute

// blobStore is the slice of object storage the service needs; object.Store
// is the production implementation.
type blobStore interface {
	Put(ctx context.Context, key, contentType string, r io.Reader, size int64) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
	PresignGet(ctx context.Context, key, filename string, expiry time.Duration) (string, error)
}

// attachmentRows is the row persistence the service needs;
// repository.AttachmentRepository is the production implementation.
type attachmentRows interface {
	Create(ctx context.Context, table string, att domain.Attachment) (domain.Attachment, error)
	Get(ctx context.Context, table, ownerID, id string) (domain.Attachment, error)
	ReplaceFile(ctx context.Context, table, id, objectKey, filename, contentType string, sizeBytes int64, thumbnailKey string) (domain.Attachment, error)
	Delete(ctx context.Context, table, ownerID, id string) error
	ListByOwner(ctx context.Context, table, ownerID string) ([]domain.Attachment, error)
	CountByOwner(ctx context.Context, table, ownerID string) (int64, error)
	OwnerExists(ctx context.Context, ownerTable, ownerID string) (bool, error)
}

// AttachmentService runs the write pipeline (validate, store blob, persist
// row, notify) and the read paths. Counts, events and the websocket hub are
// optional collaborators; a nil one is skipped.
type AttachmentService struct {
	repo              attachmentRows
	store             blobStore
	counts            *CountCache
	events            *EventPublisher
	hub               *Hub
	deleteFromStorage bool
}

func NewAttachmentService(repo attachmentRows, store blobStore, deleteFromStorage bool) *AttachmentService {
	return &AttachmentService{repo: repo, store: store, deleteFromStorage: deleteFromStorage}
}

func (s *AttachmentService) UseCountCache(counts *CountCache) {
	s.counts = counts
}

func (s *AttachmentService) UseEventPublisher(events *EventPublisher) {
	s.events = events
}

func (s *AttachmentService) UseHub(hub *Hub) {
	s.hub = hub
}

func (s *AttachmentService) OwnerExists(ctx context.Context, model *registry.Model, ownerID string) (bool, error) {
	return s.repo.OwnerExists(ctx, model.OwnerTable, ownerID)
}

func (s *AttachmentService) List(ctx context.Context, model *registry.Model, ownerID string) ([]domain.Attachment, error) {
	items, err := s.repo.ListByOwner(ctx, model.Table, ownerID)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].OwnerType = model.OwnerType
	}
	return items, nil
}

func (s *AttachmentService) Count(ctx context.Context, model *registry.Model, ownerID string) (int64, error) {
	if s.counts != nil {
		if count, ok := s.counts.Get(ctx, model.OwnerType, ownerID); ok {
			return count, nil
		}
	}
	count, err := s.repo.CountByOwner(ctx, model.Table, ownerID)
	if err != nil {
		return 0, err
	}
	if s.counts != nil {
		s.counts.Set(ctx, model.OwnerType, ownerID, count)
	}
	return count, nil
}

func (s *AttachmentService) Get(ctx context.Context, model *registry.Model, ownerID, id string) (domain.Attachment, error) {
	att, err := s.repo.Get(ctx, model.Table, ownerID, id)
	if err != nil {
		return domain.Attachment{}, err
	}
	att.OwnerType = model.OwnerType
	return att, nil
}

// Upload validates the file against the model's check sequence, stores the
// blob, persists the row and fans out the created event. Validation failures
// come back as *validate.Error with every violation message.
func (s *AttachmentService) Upload(ctx context.Context, model *registry.Model, ownerID string, p domain.Principal, fh *multipart.FileHeader) (domain.Attachment, error) {
	if err := validate.RunAll(fh, model.Checks); err != nil {
		return domain.Attachment{}, err
	}

	objectKey := s.objectKey(model.OwnerType, ownerID, fh.Filename)
	contentType := validate.DeclaredContentType(fh)
	if err := s.putUpload(ctx, objectKey, contentType, fh); err != nil {
		return domain.Attachment{}, fmt.Errorf("store upload: %w", err)
	}

	thumbnailKey := ""
	if strings.HasPrefix(contentType, "image/") {
		key, err := s.makeThumbnail(ctx, objectKey)
		if err != nil {
			commonlog.Warnf("thumbnail for %s: %v", objectKey, err)
		} else {
			thumbnailKey = key
		}
	}

	att, err := s.repo.Create(ctx, model.Table, domain.Attachment{
		OwnerID:      ownerID,
		ObjectKey:    objectKey,
		Filename:     fh.Filename,
		ContentType:  contentType,
		SizeBytes:    fh.Size,
		ThumbnailKey: thumbnailKey,
		CreatorID:    p.ID,
	})
	if err != nil {
		// The blob was written but the row never existed; clean it up
		// so nothing orphaned stays in storage.
		s.removeBlobs(ctx, domain.Attachment{ObjectKey: objectKey, ThumbnailKey: thumbnailKey})
		return domain.Attachment{}, err
	}
	att.OwnerType = model.OwnerType

	s.invalidateCount(ctx, model.OwnerType, ownerID)
	s.notify(ctx, "created", model, att)
	return att, nil
}

// Replace swaps the stored file on an existing attachment. The previous blob
// is removed only when delete-from-storage is enabled, keeping blob lifecycle
// under one setting.
func (s *AttachmentService) Replace(ctx context.Context, model *registry.Model, existing domain.Attachment, fh *multipart.FileHeader) (domain.Attachment, error) {
	if err := validate.RunAll(fh, model.Checks); err != nil {
		return domain.Attachment{}, err
	}

	objectKey := s.objectKey(model.OwnerType, existing.OwnerID, fh.Filename)
	contentType := validate.DeclaredContentType(fh)
	if err := s.putUpload(ctx, objectKey, contentType, fh); err != nil {
		return domain.Attachment{}, fmt.Errorf("store upload: %w", err)
	}

	thumbnailKey := ""
	if strings.HasPrefix(contentType, "image/") {
		key, err := s.makeThumbnail(ctx, objectKey)
		if err != nil {
			commonlog.Warnf("thumbnail for %s: %v", objectKey, err)
		} else {
			thumbnailKey = key
		}
	}

	att, err := s.repo.ReplaceFile(ctx, model.Table, existing.ID, objectKey, fh.Filename, contentType, fh.Size, thumbnailKey)
	if err != nil {
		s.removeBlobs(ctx, domain.Attachment{ObjectKey: objectKey, ThumbnailKey: thumbnailKey})
		return domain.Attachment{}, err
	}
	att.OwnerType = model.OwnerType

	if s.deleteFromStorage {
		s.removeBlobs(ctx, existing)
	}
	s.notify(ctx, "updated", model, att)
	return att, nil
}

// Delete always removes the row; the blob goes only when delete-from-storage
// is enabled.
func (s *AttachmentService) Delete(ctx context.Context, model *registry.Model, att domain.Attachment) error {
	if err := s.repo.Delete(ctx, model.Table, att.OwnerID, att.ID); err != nil {
		return err
	}
	if s.deleteFromStorage {
		s.removeBlobs(ctx, att)
	}
	s.invalidateCount(ctx, model.OwnerType, att.OwnerID)
	s.notify(ctx, "deleted", model, att)
	return nil
}

func (s *AttachmentService) PresignDownload(ctx context.Context, att domain.Attachment) (string, error) {
	return s.store.PresignGet(ctx, att.ObjectKey, att.Filename, presignTTL)
}

// Open streams the stored blob for direct download responses.
func (s *AttachmentService) Open(ctx context.Context, att domain.Attachment) (io.ReadCloser, error) {
	return s.store.Open(ctx, att.ObjectKey)
}

func (s *AttachmentService) putUpload(ctx context.Context, objectKey, contentType string, fh *multipart.FileHeader) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	return s.store.Put(ctx, objectKey, contentType, src, fh.Size)
}

func (s *AttachmentService) makeThumbnail(ctx context.Context, objectKey string) (string, error) {
	obj, err := s.store.Open(ctx, objectKey)
	if err != nil {
		return "", err
	}
	defer obj.Close()

	img, _, err := image.Decode(obj)
	if err != nil {
		return "", err
	}

	thumb := imaging.Thumbnail(img, 320, 320, imaging.Lanczos)
	buf := bytes.NewBuffer(nil)
	if err := imaging.Encode(buf, thumb, imaging.JPEG); err != nil {
		return "", err
	}

	ext := filepath.Ext(objectKey)
	thumbKey := strings.TrimSuffix(objectKey, ext) + "_thumb.jpg"
	reader := bytes.NewReader(buf.Bytes())
	if err := s.store.Put(ctx, thumbKey, "image/jpeg", reader, int64(reader.Len())); err != nil {
		return "", fmt.Errorf("upload thumb: %w", err)
	}
	return thumbKey, nil
}

func (s *AttachmentService) removeBlobs(ctx context.Context, att domain.Attachment) {
	if err := s.store.Remove(ctx, att.ObjectKey); err != nil {
		commonlog.Warnf("remove blob %s: %v", att.ObjectKey, err)
	}
	if att.ThumbnailKey != "" {
		if err := s.store.Remove(ctx, att.ThumbnailKey); err != nil {
			commonlog.Warnf("remove thumbnail %s: %v", att.ThumbnailKey, err)
		}
	}
}

func (s *AttachmentService) invalidateCount(ctx context.Context, ownerType, ownerID string) {
	if s.counts != nil {
		s.counts.Invalidate(ctx, ownerType, ownerID)
	}
}

// notify is fire-and-forget: event delivery never fails the request.
func (s *AttachmentService) notify(ctx context.Context, event string, model *registry.Model, att domain.Attachment) {
	payload := map[string]any{
		"event":      "attachment." + event,
		"attachment": att,
	}
	if s.events != nil {
		if err := s.events.Publish(ctx, model.OwnerType+".attachment."+event, payload); err != nil {
			commonlog.Errorf("publish attachment.%s for %s/%s: %v", event, model.OwnerType, att.OwnerID, err)
		}
	}
	if s.hub != nil {
		s.hub.Broadcast(model.OwnerType, att.OwnerID, payload)
	}
}

func (s *AttachmentService) objectKey(ownerType, ownerID, filename string) string {
	base := filepath.Base(strings.TrimSpace(filename))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "upload"
	}
	return fmt.Sprintf("%s/%s/%d_%s", ownerType, ownerID, time.Now().UnixNano(), base)
}
