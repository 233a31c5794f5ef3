// Package storage はアバター画像のファイルシステム保存機能を提供する。
// 保存先ディレクトリ配下にのみファイルを配置し、パストラバーサルを防止する。
package storage

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrExtensionNotAllowed は許可されていない拡張子の場合のエラー。
var ErrExtensionNotAllowed = errors.New("extension not allowed")

// ErrFileTooLarge はサイズ上限を超えた場合のエラー。
var ErrFileTooLarge = errors.New("file too large")

// ErrInvalidFilename は不正なファイル名（パストラバーサル等）の場合のエラー。
var ErrInvalidFilename = errors.New("invalid filename")

// allowedExtensions は保存を許可する画像拡張子とContent-Typeの対応。
var allowedExtensions = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"webp": "image/webp",
	"gif":  "image/gif",
}

// AvatarStoreService はアバター画像の保存・取得機能のインターフェースを定義する。
type AvatarStoreService interface {
	// Save は画像を保存し、生成したファイル名を返す。
	// ファイル名は {userID}-{8桁ランダムhex}.{拡張子} 形式。
	// 拡張子が許可リスト外、またはサイズ上限超過の場合はエラーを返す。
	Save(userID, ext string, r io.Reader) (string, error)

	// Open は保存済みファイルを開き、リーダーとContent-Typeを返す。
	// ファイル名はSaveが生成した形式のみ受け付ける。
	Open(filename string) (io.ReadCloser, string, error)

	// PublicURL はファイル名から公開URLパスを組み立てる。
	PublicURL(filename string) string
}

// FileStore はAvatarStoreServiceのファイルシステム実装。
type FileStore struct {
	dir     string
	maxSize int64
}

// NewFileStore はFileStore の新しいインスタンスを生成する。
// 保存先ディレクトリが存在しない場合は作成する。
func NewFileStore(dir string, maxSize int64) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("アバター保存ディレクトリの作成に失敗しました: %w", err)
	}
	return &FileStore{dir: dir, maxSize: maxSize}, nil
}

// Save は画像を保存し、生成したファイル名を返す。
func (s *FileStore) Save(userID, ext string, r io.Reader) (string, error) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if _, ok := allowedExtensions[ext]; !ok {
		return "", fmt.Errorf("%w: %s", ErrExtensionNotAllowed, ext)
	}

	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		return "", fmt.Errorf("ランダムサフィックスの生成に失敗しました: %w", err)
	}
	filename := fmt.Sprintf("%s-%s.%s", userID, hex.EncodeToString(suffix), ext)

	f, err := os.Create(filepath.Join(s.dir, filename))
	if err != nil {
		return "", fmt.Errorf("アバターファイルの作成に失敗しました: %w", err)
	}

	// 上限+1バイトまで読み、上限超過を検出する
	written, err := io.Copy(f, io.LimitReader(r, s.maxSize+1))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(filepath.Join(s.dir, filename))
		return "", fmt.Errorf("アバターファイルの書き込みに失敗しました: %w", err)
	}
	if written > s.maxSize {
		os.Remove(filepath.Join(s.dir, filename))
		return "", fmt.Errorf("%w: %d bytes", ErrFileTooLarge, written)
	}

	return filename, nil
}

// Open は保存済みファイルを開き、リーダーとContent-Typeを返す。
func (s *FileStore) Open(filename string) (io.ReadCloser, string, error) {
	contentType, err := s.validateFilename(filename)
	if err != nil {
		return nil, "", err
	}

	f, err := os.Open(filepath.Join(s.dir, filename))
	if err != nil {
		return nil, "", err
	}
	return f, contentType, nil
}

// PublicURL はファイル名から公開URLパスを組み立てる。
func (s *FileStore) PublicURL(filename string) string {
	return "/avatars/" + filename
}

// validateFilename はファイル名がSaveの生成形式かを検証し、Content-Typeを返す。
// パス区切り文字を含む名前やディレクトリ参照を拒否する。
func (s *FileStore) validateFilename(filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) || strings.HasPrefix(filename, ".") {
		return "", fmt.Errorf("%w: %s", ErrInvalidFilename, filename)
	}
	if strings.ContainsAny(filename, "/\\") {
		return "", fmt.Errorf("%w: %s", ErrInvalidFilename, filename)
	}

	idx := strings.LastIndex(filename, ".")
	if idx < 0 {
		return "", fmt.Errorf("%w: %s", ErrInvalidFilename, filename)
	}
	contentType, ok := allowedExtensions[strings.ToLower(filename[idx+1:])]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrInvalidFilename, filename)
	}
	return contentType, nil
}

// compile-time interface check
var _ AvatarStoreService = (*FileStore)(nil)
