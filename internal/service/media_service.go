package service

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/apaddicto/internal/db"
	"github.com/google/uuid"
	_ "golang.org/x/image/webp"
	"gorm.io/gorm"
)

var (
	ErrMediaNotFound    = errors.New("media file not found")
	ErrMediaTooLarge    = errors.New("media file exceeds the size limit")
	ErrMediaUnsupported = errors.New("media type not allowed")
)

// mediaExtensions 同时充当白名单：只接受能映射到固定扩展名的类型，
// 存储文件名从不沿用客户端提供的扩展名。
var mediaExtensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"image/bmp":       ".bmp",
	"image/x-icon":    ".ico",
	"video/mp4":       ".mp4",
	"video/webm":      ".webm",
	"video/avi":       ".avi",
	"audio/mpeg":      ".mp3",
	"audio/aiff":      ".aiff",
	"audio/midi":      ".mid",
	"audio/basic":     ".au",
	"audio/wave":      ".wav",
	"audio/wav":       ".wav",
	"audio/ogg":       ".ogg",
	"application/ogg": ".ogg",
	"application/pdf": ".pdf",
}

// MediaService handles uploaded files on disk plus their metadata rows.
type MediaService struct {
	db       *gorm.DB
	dir      string
	urlPath  string
	maxBytes int64
	now      func() time.Time
}

// MediaFilter describes filters for listing media.
type MediaFilter struct {
	Kind   string
	Search string
}

// UploadInput describes one incoming file.
type UploadInput struct {
	OriginalName string
	Title        string
	Tags         []string
	UploadedBy   uint
}

// MediaInput represents the editable metadata of a media file.
type MediaInput struct {
	Title *string
	Tags  []string
}

// NewMediaService creates a MediaService writing into dir and serving under urlPath.
func NewMediaService(gdb *gorm.DB, dir, urlPath string, maxBytes int64) *MediaService {
	return &MediaService{
		db:       gdb,
		dir:      dir,
		urlPath:  "/" + strings.Trim(urlPath, "/"),
		maxBytes: maxBytes,
		now:      time.Now,
	}
}

// MaxBytes returns the configured upload limit.
func (s *MediaService) MaxBytes() int64 {
	return s.maxBytes
}

// Upload sniffs the content type, writes the file under a fresh name and
// records it. Image dimensions are read when the format is decodable.
func (s *MediaService) Upload(r io.Reader, input UploadInput) (*db.MediaFile, error) {
	br := bufio.NewReaderSize(r, 512)
	head, err := br.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(head) == 0 {
		return nil, invalidField("file", "is empty")
	}
	mimeType := detectMediaType(head)
	ext, ok := mediaExtension(mimeType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMediaUnsupported, mimeType)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	filename := fmt.Sprintf("%s-%s%s", s.now().Format("20060102"), uuid.New().String(), ext)
	target := filepath.Join(s.dir, filename)
	out, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create upload file: %w", err)
	}

	var src io.Reader = br
	if s.maxBytes > 0 {
		src = io.LimitReader(br, s.maxBytes+1)
	}
	var imageHead bytes.Buffer
	if strings.HasPrefix(mimeType, "image/") {
		src = io.TeeReader(src, &limitedBuffer{buf: &imageHead, max: 1 << 20})
	}
	size, err := io.Copy(out, src)
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(target)
		return nil, fmt.Errorf("write upload: %w", err)
	}
	if s.maxBytes > 0 && size > s.maxBytes {
		_ = os.Remove(target)
		return nil, ErrMediaTooLarge
	}

	media := db.MediaFile{
		Filename:     filename,
		OriginalName: filepath.Base(strings.TrimSpace(input.OriginalName)),
		MimeType:     mimeType,
		Size:         size,
		URL:          path.Join(s.urlPath, filename),
		Title:        strings.TrimSpace(input.Title),
		Tags:         db.ToJSON(cleanStrings(input.Tags)),
	}
	if media.Title == "" {
		media.Title = strings.TrimSuffix(media.OriginalName, filepath.Ext(media.OriginalName))
	}
	if input.UploadedBy != 0 {
		uploader := input.UploadedBy
		media.UploadedBy = &uploader
	}
	if imageHead.Len() > 0 {
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(imageHead.Bytes())); err == nil {
			media.Width = cfg.Width
			media.Height = cfg.Height
		}
	}

	if err := s.db.Create(&media).Error; err != nil {
		_ = os.Remove(target)
		return nil, fmt.Errorf("create media record: %w", err)
	}
	return &media, nil
}

// List returns media matching the filter, newest first.
func (s *MediaService) List(filter MediaFilter) ([]db.MediaFile, error) {
	var items []db.MediaFile
	query := s.db.Model(&db.MediaFile{})
	if kind := normalizeKey(filter.Kind); kind != "" {
		if kind == "document" {
			query = query.Where("mime_type = ?", "application/pdf")
		} else {
			query = query.Where("mime_type LIKE ?", kind+"/%")
		}
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(original_name) LIKE ?", like, like)
	}
	if err := query.Order("created_at DESC").Order("id DESC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	return items, nil
}

// Get fetches a media file by id.
func (s *MediaService) Get(id uint) (*db.MediaFile, error) {
	var item db.MediaFile
	if err := s.db.First(&item, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMediaNotFound
		}
		return nil, fmt.Errorf("get media: %w", err)
	}
	return &item, nil
}

// Update modifies the title and tags of a media file.
func (s *MediaService) Update(id uint, input MediaInput) (*db.MediaFile, error) {
	item, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if input.Title != nil {
		item.Title = strings.TrimSpace(*input.Title)
	}
	if input.Tags != nil {
		item.Tags = db.ToJSON(cleanStrings(input.Tags))
	}
	if err := s.db.Save(item).Error; err != nil {
		return nil, fmt.Errorf("update media: %w", err)
	}
	return item, nil
}

// Delete removes the record and the file on disk. A file already missing is not an error.
func (s *MediaService) Delete(id uint) error {
	item, err := s.Get(id)
	if err != nil {
		return err
	}
	if err := s.db.Delete(item).Error; err != nil {
		return fmt.Errorf("delete media: %w", err)
	}
	if err := os.Remove(filepath.Join(s.dir, filepath.Base(item.Filename))); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove media file: %w", err)
	}
	return nil
}

func detectMediaType(head []byte) string {
	mimeType := http.DetectContentType(head)
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = mimeType[:idx]
	}
	return strings.TrimSpace(mimeType)
}

func mediaExtension(mimeType string) (string, bool) {
	ext, ok := mediaExtensions[mimeType]
	return ext, ok
}

// limitedBuffer keeps at most max bytes and silently drops the rest.
type limitedBuffer struct {
	buf *bytes.Buffer
	max int
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	if remaining := l.max - l.buf.Len(); remaining > 0 {
		if len(p) > remaining {
			l.buf.Write(p[:remaining])
		} else {
			l.buf.Write(p)
		}
	}
	return len(p), nil
}
