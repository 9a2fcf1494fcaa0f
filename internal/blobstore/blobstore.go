// Package blobstore is the photo object store: it issues signed upload URLs,
// persists uploaded objects on disk, and resolves the opaque object paths the
// rest of the system stores and forwards.
package blobstore

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrObjectNotFound signals a missing object, distinct from an I/O failure.
var ErrObjectNotFound = errors.New("object not found")

// ObjectPrefix is the URL path prefix under which objects are served.
const ObjectPrefix = "/objects/uploads/"

// Store keeps uploaded objects on disk under root and signs upload URLs with
// an HS256 token so only URLs we issued can write.
type Store struct {
	root       string
	publicBase string
	signingKey string
	issuer     string
	uploadTTL  time.Duration
}

// New creates a disk-backed store rooted at root. publicBase is the external
// base URL upload URLs are issued against.
func New(root, publicBase, signingKey, issuer string, uploadTTL time.Duration) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(root, "uploads"), 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: create root: %w", err)
	}
	if uploadTTL <= 0 {
		uploadTTL = 15 * time.Minute
	}
	return &Store{
		root:       root,
		publicBase: strings.TrimRight(publicBase, "/"),
		signingKey: signingKey,
		issuer:     issuer,
		uploadTTL:  uploadTTL,
	}, nil
}

type uploadClaims struct {
	ObjectID string `json:"obj"`
	jwt.RegisteredClaims
}

// IssueUploadURL mints a fresh object id and returns the URL a client should
// PUT the object bytes to. The embedded token expires after the upload TTL.
func (s *Store) IssueUploadURL() (string, error) {
	objectID := uuid.NewString()
	claims := uploadClaims{
		ObjectID: objectID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   objectID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.uploadTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.signingKey))
	if err != nil {
		return "", fmt.Errorf("blobstore: sign upload token: %w", err)
	}
	return s.publicBase + ObjectPrefix + objectID + "?token=" + url.QueryEscape(token), nil
}

// VerifyUploadToken checks that token authorizes a write to objectID.
func (s *Store) VerifyUploadToken(token, objectID string) error {
	parsed, err := jwt.ParseWithClaims(token, &uploadClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(s.signingKey), nil
	})
	if err != nil {
		return fmt.Errorf("blobstore: invalid upload token: %w", err)
	}
	claims, ok := parsed.Claims.(*uploadClaims)
	if !ok || !parsed.Valid {
		return errors.New("blobstore: invalid upload token")
	}
	if s.issuer != "" && claims.Issuer != s.issuer {
		return errors.New("blobstore: upload token issuer mismatch")
	}
	if claims.ObjectID != objectID {
		return errors.New("blobstore: upload token object mismatch")
	}
	return nil
}

// Save streams the object bytes to disk under the given id.
func (s *Store) Save(objectID string, r io.Reader) error {
	path, err := s.objectFile(objectID)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("blobstore: create object: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("blobstore: write object: %w", err)
	}
	return f.Close()
}

// Open returns a reader over a stored object and its size, or
// ErrObjectNotFound.
func (s *Store) Open(objectID string) (io.ReadCloser, int64, error) {
	path, err := s.objectFile(objectID)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, ErrObjectNotFound
		}
		return nil, 0, fmt.Errorf("blobstore: open object: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("blobstore: stat object: %w", err)
	}
	return f, info.Size(), nil
}

// NormalizeObjectPath maps the upload URL a client used back to the opaque
// object path stored on the student record. Only URLs under our object prefix
// are accepted; no existence check is performed.
func (s *Store) NormalizeObjectPath(imageURL string) (string, error) {
	parsed, err := url.Parse(imageURL)
	if err != nil {
		return "", fmt.Errorf("blobstore: parse image url: %w", err)
	}
	if !strings.HasPrefix(parsed.Path, ObjectPrefix) {
		return "", errors.New("blobstore: url is not an object upload url")
	}
	objectID := strings.TrimPrefix(parsed.Path, ObjectPrefix)
	if _, err := uuid.Parse(objectID); err != nil {
		return "", errors.New("blobstore: malformed object id")
	}
	return ObjectPrefix + objectID, nil
}

// objectFile resolves an object id to its on-disk path. Ids must be UUIDs,
// which also rules out path traversal.
func (s *Store) objectFile(objectID string) (string, error) {
	if _, err := uuid.Parse(objectID); err != nil {
		return "", ErrObjectNotFound
	}
	return filepath.Join(s.root, "uploads", objectID), nil
}
