package store

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jeremyhahn/go-idverify/pkg/oauth"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const saltSize = 16

// File stores credentials encrypted with ChaCha20-Poly1305 under a key
// derived from a passphrase with argon2id. The file holds a random salt, the
// random nonce and the sealed JSON document, in that order. Every Save picks
// a fresh salt.
type File struct {
	path       string
	passphrase []byte
	time       uint32
	memory     uint32
	threads    uint8
}

// FileOption configures a File store.
type FileOption func(*File)

// WithKDFTime sets the argon2id iteration count (default: 1).
func WithKDFTime(t uint32) FileOption {
	return func(s *File) {
		if t > 0 {
			s.time = t
		}
	}
}

// WithKDFMemory sets the argon2id memory usage in KiB (default: 64*1024).
func WithKDFMemory(kib uint32) FileOption {
	return func(s *File) {
		if kib > 0 {
			s.memory = kib
		}
	}
}

// NewFile creates a store at path sealed with passphrase.
func NewFile(path, passphrase string, opts ...FileOption) (*File, error) {
	if passphrase == "" {
		return nil, errors.New("store: encryption key is required")
	}
	s := &File{
		path:       path,
		passphrase: []byte(passphrase),
		time:       1,
		memory:     64 * 1024,
		threads:    4,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *File) aead(salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey(s.passphrase, salt, s.time, s.memory, s.threads, chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("store: create cipher: %w", err)
	}
	return aead, nil
}

// Path returns the file location.
func (s *File) Path() string { return s.path }

func (s *File) Save(ctx context.Context, creds *oauth.Credentials) error {
	plaintext, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("store: marshal credentials: %w", err)
	}

	header := make([]byte, saltSize+chacha20poly1305.NonceSize)
	if _, err := io.ReadFull(rand.Reader, header); err != nil {
		return fmt.Errorf("store: generate salt and nonce: %w", err)
	}
	aead, err := s.aead(header[:saltSize])
	if err != nil {
		return err
	}
	sealed := aead.Seal(header, header[saltSize:], plaintext, nil)

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("store: create directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".credentials-*")
	if err != nil {
		return fmt.Errorf("store: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		return fmt.Errorf("store: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("store: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("store: replace: %w", err)
	}
	return nil
}

func (s *File) Load(ctx context.Context) (*oauth.Credentials, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read: %w", err)
	}

	headerSize := saltSize + chacha20poly1305.NonceSize
	if len(data) < headerSize {
		return nil, errors.New("store: ciphertext too short")
	}
	aead, err := s.aead(data[:saltSize])
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, data[saltSize:headerSize], data[headerSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("store: decrypt: %w", err)
	}

	var creds oauth.Credentials
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return nil, fmt.Errorf("store: unmarshal credentials: %w", err)
	}
	return &creds, nil
}

func (s *File) Delete(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("store: delete: %w", err)
	}
	return nil
}
