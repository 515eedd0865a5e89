package wiki

import (
	"context"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Store is the single source of truth for pages and attachment blobs. Every
// operation runs against its own transaction-scoped connection; failures are
// logged and returned as wrapped errors, never allowed to panic through.
type Store struct {
	db        *gorm.DB
	cache     ListCache
	renderer  *Renderer
	logger    *logrus.Logger
	sentryHub *sentry.Hub
}

// ErrPageNotFound indicates the requested page does not exist.
var ErrPageNotFound = eris.New("page not found")

// ErrHomePageProtected indicates an attempt to delete the reserved home page.
var ErrHomePageProtected = eris.New("home page cannot be deleted")

// ErrNameRequired indicates a save was attempted without a usable page name.
var ErrNameRequired = eris.New("page name is required")

// ErrContentRequired indicates a save was attempted without page content.
var ErrContentRequired = eris.New("page content is required")

// PageInput carries the fields of a page save request. A zero ID inserts a
// new page; a matching ID replaces the existing page in place.
type PageInput struct {
	ID      uint
	Name    string
	Content string
	Upload  *FileUpload
}

// FileUpload is an optional file part accompanying a page save.
type FileUpload struct {
	FileName string
	MimeType string
	Data     []byte
}

// NewStore wires the store with its database, cache, and renderer.
func NewStore(db *gorm.DB, cache ListCache, renderer *Renderer, logger *logrus.Logger, hub *sentry.Hub) (*Store, error) {
	if db == nil {
		return nil, eris.New("gorm DB is required")
	}
	if cache == nil {
		return nil, eris.New("list cache is required")
	}
	if renderer == nil {
		return nil, eris.New("renderer is required")
	}

	return &Store{
		db:        db,
		cache:     cache,
		renderer:  renderer,
		logger:    logger,
		sentryHub: hub,
	}, nil
}

// ListAllPages returns every page ordered by name. The listing is served from
// the cache when warm; a miss reads through to storage and repopulates it.
func (s *Store) ListAllPages(ctx context.Context) ([]Page, error) {
	if pages, ok := s.cache.Get(); ok {
		return pages, nil
	}

	var pages []Page
	if err := s.db.WithContext(ctx).Preload("Attachments").Order("name ASC").Find(&pages).Error; err != nil {
		s.recordError(nil, err, "listing pages")
		return nil, eris.Wrap(err, "listing pages")
	}

	s.cache.Set(pages)
	return pages, nil
}

// GetPage returns the page matching the name case-insensitively, or nil when
// absent. Single lookups always read through to storage.
func (s *Store) GetPage(ctx context.Context, name string) (*Page, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, eris.Wrap(ErrNameRequired, "fetching page")
	}

	var page Page
	err := s.db.WithContext(ctx).
		Preload("Attachments").
		First(&page, "LOWER(name) = LOWER(?)", trimmed).Error
	if err != nil {
		if eris.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		s.recordError(logrus.Fields{"name": trimmed}, err, "fetching page by name")
		return nil, eris.Wrapf(err, "fetching page by name: %s", trimmed)
	}

	return &page, nil
}

// SavePage inserts or replaces a page. The name is normalized and stripped of
// markup; the content is stored verbatim. When an upload is present its bytes
// go to the blob collection under a fresh file id and an attachment record is
// appended, preserving all prior attachments. The listing cache is
// invalidated on success.
func (s *Store) SavePage(ctx context.Context, input PageInput) (*Page, error) {
	name := s.renderer.NormalizeName(input.Name)
	if name == "" {
		return nil, eris.Wrap(ErrNameRequired, "saving page")
	}
	if strings.TrimSpace(input.Content) == "" {
		return nil, eris.Wrap(ErrContentRequired, "saving page")
	}

	now := time.Now().UTC()

	page := &Page{
		Name:            name,
		Content:         input.Content,
		LastModifiedUTC: now,
	}

	if input.ID != 0 {
		var existing Page
		err := s.db.WithContext(ctx).Preload("Attachments").First(&existing, input.ID).Error
		switch {
		case err == nil:
			existing.Name = name
			existing.Content = input.Content
			existing.LastModifiedUTC = now
			page = &existing
		case eris.Is(err, gorm.ErrRecordNotFound):
			// Unknown id falls through to an insert with a fresh id.
		default:
			s.recordError(logrus.Fields{"page_id": input.ID}, err, "loading page for save")
			return nil, eris.Wrapf(err, "loading page %d for save", input.ID)
		}
	}

	if input.Upload != nil {
		fileID := uuid.NewString()

		blob := &FileBlob{FileID: fileID, Data: input.Upload.Data}
		if err := s.db.WithContext(ctx).Create(blob).Error; err != nil {
			s.recordError(logrus.Fields{"name": name, "file_name": input.Upload.FileName}, err, "storing attachment blob")
			return nil, eris.Wrapf(err, "storing attachment blob for page: %s", name)
		}

		page.Attachments = append(page.Attachments, Attachment{
			FileID:          fileID,
			FileName:        input.Upload.FileName,
			MimeType:        input.Upload.MimeType,
			LastModifiedUTC: now,
		})
	}

	if err := s.db.WithContext(ctx).Save(page).Error; err != nil {
		s.recordError(logrus.Fields{"name": name}, err, "saving page")
		return nil, eris.Wrapf(err, "saving page: %s", name)
	}

	s.cache.Invalidate()
	return page, nil
}

// DeletePage removes the page with the given id together with its attachment
// records and blobs. The home page is undeletable; its check is
// case-insensitive. Blob cleanup is best effort: a blob delete failure is
// logged as an orphan and does not abort the page deletion.
func (s *Store) DeletePage(ctx context.Context, id uint, homePageName string) error {
	var page Page
	err := s.db.WithContext(ctx).Preload("Attachments").First(&page, id).Error
	if err != nil {
		if eris.Is(err, gorm.ErrRecordNotFound) {
			s.warn(logrus.Fields{"page_id": id}, "delete requested for missing page")
			return eris.Wrapf(ErrPageNotFound, "deleting page %d", id)
		}
		s.recordError(logrus.Fields{"page_id": id}, err, "loading page for delete")
		return eris.Wrapf(err, "loading page %d for delete", id)
	}

	if strings.EqualFold(page.Name, homePageName) {
		s.warn(logrus.Fields{"page_id": id, "name": page.Name}, "refusing to delete home page")
		return eris.Wrapf(ErrHomePageProtected, "deleting page %d", id)
	}

	for _, attachment := range page.Attachments {
		if err := s.deleteBlob(ctx, attachment.FileID); err != nil {
			s.warn(logrus.Fields{
				"page_id": id,
				"file_id": attachment.FileID,
				"error":   err.Error(),
			}, "orphaned attachment blob: delete failed during page removal")
		}
	}

	result := s.db.WithContext(ctx).Select("Attachments").Delete(&page)
	if result.Error != nil {
		s.recordError(logrus.Fields{"page_id": id}, result.Error, "deleting page")
		return eris.Wrapf(result.Error, "deleting page %d", id)
	}
	if result.RowsAffected == 0 {
		s.warn(logrus.Fields{"page_id": id}, "page vanished before delete completed")
		return eris.Wrapf(ErrPageNotFound, "deleting page %d", id)
	}

	s.cache.Invalidate()
	return nil
}

// DeleteAttachment removes an attachment blob and its entry on the owning
// page. When the blob delete fails the page is still returned alongside the
// error so callers can show current state; a failure to persist the trimmed
// attachment list is reported distinctly.
func (s *Store) DeleteAttachment(ctx context.Context, pageID uint, fileID string) (*Page, error) {
	var page Page
	err := s.db.WithContext(ctx).Preload("Attachments").First(&page, pageID).Error
	if err != nil {
		if eris.Is(err, gorm.ErrRecordNotFound) {
			s.warn(logrus.Fields{"page_id": pageID}, "attachment delete requested for missing page")
			return nil, eris.Wrapf(ErrPageNotFound, "deleting attachment %s", fileID)
		}
		s.recordError(logrus.Fields{"page_id": pageID}, err, "loading page for attachment delete")
		return nil, eris.Wrapf(err, "loading page %d for attachment delete", pageID)
	}

	if err := s.deleteBlob(ctx, fileID); err != nil {
		s.recordError(logrus.Fields{"page_id": pageID, "file_id": fileID}, err, "deleting attachment blob")
		return &page, eris.Wrapf(err, "deleting attachment blob: %s", fileID)
	}

	kept := page.Attachments[:0]
	for _, attachment := range page.Attachments {
		if strings.EqualFold(attachment.FileID, fileID) {
			if err := s.db.WithContext(ctx).Delete(&Attachment{}, attachment.ID).Error; err != nil {
				s.recordError(logrus.Fields{"page_id": pageID, "file_id": fileID}, err, "removing attachment record")
				return &page, eris.Wrapf(err, "removing attachment record: %s", fileID)
			}
			continue
		}
		kept = append(kept, attachment)
	}
	page.Attachments = kept

	page.LastModifiedUTC = time.Now().UTC()
	if err := s.db.WithContext(ctx).Model(&page).Update("last_modified_utc", page.LastModifiedUTC).Error; err != nil {
		s.recordError(logrus.Fields{"page_id": pageID, "file_id": fileID}, err, "persisting page after attachment delete")
		return &page, eris.Wrapf(err, "persisting page %d after attachment delete", pageID)
	}

	s.cache.Invalidate()
	return &page, nil
}

// GetFile returns the metadata and full byte content for a stored file id,
// or nil when the id is unknown.
func (s *Store) GetFile(ctx context.Context, fileID string) (*File, error) {
	trimmed := strings.TrimSpace(fileID)
	if trimmed == "" {
		return nil, nil
	}

	var attachment Attachment
	err := s.db.WithContext(ctx).First(&attachment, "LOWER(file_id) = LOWER(?)", trimmed).Error
	if err != nil {
		if eris.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		s.recordError(logrus.Fields{"file_id": trimmed}, err, "fetching attachment metadata")
		return nil, eris.Wrapf(err, "fetching attachment metadata: %s", trimmed)
	}

	var blob FileBlob
	err = s.db.WithContext(ctx).First(&blob, "LOWER(file_id) = LOWER(?)", trimmed).Error
	if err != nil {
		if eris.Is(err, gorm.ErrRecordNotFound) {
			s.warn(logrus.Fields{"file_id": trimmed}, "attachment metadata present but blob missing")
			return nil, nil
		}
		s.recordError(logrus.Fields{"file_id": trimmed}, err, "fetching attachment blob")
		return nil, eris.Wrapf(err, "fetching attachment blob: %s", trimmed)
	}

	return &File{
		FileID:          attachment.FileID,
		FileName:        attachment.FileName,
		MimeType:        attachment.MimeType,
		LastModifiedUTC: attachment.LastModifiedUTC,
		Data:            blob.Data,
	}, nil
}

func (s *Store) deleteBlob(ctx context.Context, fileID string) error {
	result := s.db.WithContext(ctx).Where("LOWER(file_id) = LOWER(?)", fileID).Delete(&FileBlob{})
	if result.Error != nil {
		return eris.Wrapf(result.Error, "deleting blob: %s", fileID)
	}
	if result.RowsAffected == 0 {
		return eris.Errorf("blob not found: %s", fileID)
	}
	return nil
}

func (s *Store) recordError(fields logrus.Fields, err error, message string) {
	if err == nil {
		return
	}

	if s.logger != nil {
		entry := s.logger.WithField("error", err.Error())
		if len(fields) > 0 {
			entry = entry.WithFields(fields)
		}
		entry.Error(message)
	}

	if s.sentryHub != nil {
		s.sentryHub.CaptureException(err)
	}
}

func (s *Store) warn(fields logrus.Fields, message string) {
	if s.logger == nil {
		return
	}

	entry := s.logger.WithFields(fields)
	entry.Warn(message)
}
