package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/matchers"
	"github.com/rs/zerolog/log"
)

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}

type ImageInfo struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type FileInfo struct {
	Name       string    `json:"name"`
	IsDir      bool      `json:"is_dir"`
	SizeBytes  int64     `json:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at"`
	URL        string    `json:"url"`
	Image      ImageInfo `json:"image"`
}

type Directory struct {
	Name  string     `json:"name"`
	Files []FileInfo `json:"files"`
}

func isImage(path string) bool {
	return slices.Contains(imageExtensions, strings.ToLower(filepath.Ext(path)))
}

func walkImages(ctx context.Context, rootPath string) (Directory, error) {
	var files []FileInfo

	if err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != rootPath && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !isImage(path) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to get file info: %w", err)
		}

		relPath, err := filepath.Rel(rootPath, path)
		if err != nil {
			return fmt.Errorf("failed to get relative path: %w", err)
		}

		files = append(files, FileInfo{
			Name:       filepath.ToSlash(relPath),
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime(),
		})
		return nil
	}); err != nil {
		return Directory{}, err
	}

	for i := range files {
		w, h, err := readDimensions(filepath.Join(rootPath, filepath.FromSlash(files[i].Name)))
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Str("filename", files[i].Name).Msg("cannot read image dimensions")
			continue
		}
		files[i].Image = ImageInfo{
			Width:  w,
			Height: h,
		}
	}

	return Directory{
		Name:  filepath.Base(rootPath),
		Files: files,
	}, nil
}

// readDimensions reads the header dimensions of an image file. These are the
// stored dimensions, before any EXIF orientation is applied.
func readDimensions(filePath string) (width, height int, err error) {
	kind, err := filetype.MatchFile(filePath)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to sniff file type: %w", err)
	}
	switch kind {
	case matchers.TypeJpeg:
		return readJPEGDimensions(filePath)
	case matchers.TypePng, matchers.TypeWebp:
	default:
		return 0, 0, fmt.Errorf("unsupported image type %q", kind.MIME.Value)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	cfg, _, err := image.DecodeConfig(file)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to decode image header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// readJPEGDimensions scans segment headers up to the first SOF marker
// instead of decoding the whole file.
func readJPEGDimensions(filePath string) (width, height int, err error) {
	file, err := os.Open(filePath)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var buf [2]byte
	if _, err = io.ReadFull(file, buf[:]); err != nil {
		return 0, 0, fmt.Errorf("failed to read SOI marker: %w", err)
	}
	if buf[0] != 0xFF || buf[1] != 0xD8 {
		return 0, 0, errors.New("not a valid JPEG file")
	}

	for {
		if _, err = io.ReadFull(file, buf[:]); err != nil {
			return 0, 0, err
		}
		if buf[0] != 0xFF {
			return 0, 0, errors.New("invalid JPEG format")
		}

		// fill bytes
		for buf[1] == 0xFF {
			if _, err = io.ReadFull(file, buf[1:2]); err != nil {
				return 0, 0, err
			}
		}
		marker := buf[1]

		if _, err = io.ReadFull(file, buf[:]); err != nil {
			return 0, 0, err
		}
		length := binary.BigEndian.Uint16(buf[:])
		if length < 2 {
			return 0, 0, errors.New("invalid JPEG segment length")
		}

		// SOF0..SOF3 carry the frame dimensions
		if marker >= 0xC0 && marker <= 0xC3 {
			if length < 7 {
				return 0, 0, errors.New("truncated SOF segment")
			}
			segment := make([]byte, length-2)
			if _, err = io.ReadFull(file, segment); err != nil {
				return 0, 0, err
			}
			height = int(binary.BigEndian.Uint16(segment[1:3]))
			width = int(binary.BigEndian.Uint16(segment[3:5]))
			return width, height, nil
		}

		if _, err = file.Seek(int64(length-2), io.SeekCurrent); err != nil {
			return 0, 0, err
		}
	}
}
