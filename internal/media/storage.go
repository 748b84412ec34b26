package media

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrInvalidPayload indicates the photo payload is not valid base64.
	ErrInvalidPayload = errors.New("media: invalid photo payload")
	// ErrPhotoNotFound indicates no stored file matches the reference.
	ErrPhotoNotFound = errors.New("media: photo not found")

	errMissingDirectory = errors.New("media directory is required")
)

// IDProvider issues unique identifiers for stored photo files.
type IDProvider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs an IDProvider that issues UUIDv7 identifiers.
func NewUUIDProvider() IDProvider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

type StorageConfig struct {
	Dir        string
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Storage writes decoded photo payloads beneath a base directory and
// resolves references back to file paths.
type Storage struct {
	dir    string
	ids    IDProvider
	logger *zap.Logger
}

func NewStorage(cfg StorageConfig) (*Storage, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, errMissingDirectory
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}

	ids := cfg.IDProvider
	if ids == nil {
		ids = NewUUIDProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Storage{dir: cfg.Dir, ids: ids, logger: logger}, nil
}

// Save decodes a base64 photo payload, writes it under a fresh identifier
// and returns the reference. A data-URL prefix is tolerated and stripped.
func (s *Storage) Save(encoded string) (string, error) {
	payload := encoded
	if strings.HasPrefix(payload, "data:") {
		if comma := strings.Index(payload, ","); comma >= 0 {
			payload = payload[comma+1:]
		}
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	id, err := s.ids.NewID()
	if err != nil {
		return "", err
	}
	reference := id + ".jpg"

	if err := os.WriteFile(filepath.Join(s.dir, reference), raw, 0o644); err != nil {
		return "", err
	}

	s.logger.Debug("photo stored", zap.String("reference", reference), zap.Int("bytes", len(raw)))
	return reference, nil
}

// Path resolves a stored reference to its absolute file path.
func (s *Storage) Path(reference string) (string, error) {
	cleaned := filepath.Base(strings.TrimSpace(reference))
	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("%w: empty reference", ErrPhotoNotFound)
	}
	path := filepath.Join(s.dir, cleaned)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrPhotoNotFound, cleaned)
		}
		return "", err
	}
	return path, nil
}

// Dir exposes the base directory for static serving.
func (s *Storage) Dir() string {
	return s.dir
}
