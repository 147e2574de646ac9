package filesystem

import (
	"io"
	"os"
	"path/filepath"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/core/errors"
)

const (
	dirPerm  = 0o755
	filePerm = 0o600
)

// Exists проверяет существование файла или директории
func Exists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// CreateDir создает директорию вместе с родителями
func CreateDir(path string) error {
	if err := os.MkdirAll(path, dirPerm); err != nil {
		return fsError(err, "create_dir_failed", "failed to create directory", path)
	}
	return nil
}

// RemoveDir удаляет директорию; отсутствие директории не ошибка
func RemoveDir(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fsError(err, "remove_dir_failed", "failed to remove directory", path)
	}
	return nil
}

// ResetDir удаляет директорию и создает ее заново пустой
func ResetDir(path string) error {
	if err := RemoveDir(path); err != nil {
		return err
	}
	return CreateDir(path)
}

// WriteFile записывает данные в файл, создавая родительскую директорию
func WriteFile(path string, data []byte) error {
	if err := CreateDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, filePerm); err != nil {
		return fsError(err, "write_file_failed", "failed to write file", path)
	}
	return nil
}

// CopyFile копирует файл, сохраняя права доступа
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fsError(err, "read_file_failed", "failed to open file", src)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fsError(err, "read_file_failed", "failed to stat file", src)
	}
	if err := CreateDir(filepath.Dir(dst)); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fsError(err, "write_file_failed", "failed to create file", dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fsError(err, "write_file_failed", "failed to copy file", dst)
	}
	if err := out.Close(); err != nil {
		return fsError(err, "write_file_failed", "failed to close file", dst)
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

// CopyTree копирует содержимое src в dst. Существующие файлы перезаписываются.
func CopyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return fsError(err, "read_dir_failed", "failed to walk directory", path)
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return CreateDir(target)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return CopyFile(path, target)
	})
}

func fsError(err error, code, message, path string) error {
	return errors.WrapDomainError(err, errors.ErrorTypeFileSystem, code, message).
		WithDetails(map[string]any{"path": path})
}
