package core

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
)

// Role identifies the author of a message.
type Role string

const (
	System    Role = "system"
	User      Role = "user"
	Assistant Role = "assistant"
)

// Message represents a single generation turn sent to a model provider.
type Message struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// PartType identifies the type of content stored in a Part.
type PartType string

const (
	PartTypeText  PartType = "text"
	PartTypeImage PartType = "image"
	PartTypeFile  PartType = "file"
)

// Part is the interface implemented by all message fragments.
type Part interface {
	Type() PartType
	Content() any
}

// Text represents text content.
type Text struct {
	Text string `json:"text"`
}

func (t Text) Type() PartType { return PartTypeText }
func (t Text) Content() any   { return t.Text }

// Image references binary image content.
type Image struct {
	Source BlobRef `json:"source"`
	Alt    string  `json:"alt,omitempty"`
}

func (i Image) Type() PartType { return PartTypeImage }
func (i Image) Content() any   { return i.Source }

// File references document content, e.g. a CSV excerpt attached to a prompt.
type File struct {
	Source BlobRef `json:"source"`
	Name   string  `json:"name,omitempty"`
}

func (f File) Type() PartType { return PartTypeFile }
func (f File) Content() any   { return f.Source }

// BlobKind identifies how binary data should be fetched.
type BlobKind string

const (
	BlobBytes BlobKind = "bytes"
	BlobPath  BlobKind = "path"
)

// BlobRef points to binary data without forcing immediate loading.
type BlobRef struct {
	Kind BlobKind `json:"kind"`

	Bytes []byte `json:"bytes,omitempty"`
	Path  string `json:"path,omitempty"`

	MIME string `json:"mime"`
	Size int64  `json:"size,omitempty"`
}

// Validate ensures the blob reference is well-formed.
func (b BlobRef) Validate() error {
	if b.Kind == "" {
		return errors.New("blob kind is required")
	}
	if b.MIME == "" {
		return errors.New("blob MIME type is required")
	}
	switch b.Kind {
	case BlobBytes:
		if len(b.Bytes) == 0 {
			return errors.New("bytes kind requires data")
		}
	case BlobPath:
		if b.Path == "" {
			return errors.New("path kind requires path")
		}
	default:
		return fmt.Errorf("unknown blob kind: %s", b.Kind)
	}
	return nil
}

// Base64 returns a base64 representation of the binary data.
func (b BlobRef) Base64() (string, error) {
	data, err := b.Read()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Read materializes the blob contents into memory.
func (b BlobRef) Read() ([]byte, error) {
	reader, err := b.Stream()
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

// Stream returns an io.ReadCloser for the blob contents. The caller is
// responsible for closing the returned reader.
func (b BlobRef) Stream() (io.ReadCloser, error) {
	switch b.Kind {
	case BlobBytes:
		// Copy so the caller cannot mutate the backing slice mid-read.
		buf := make([]byte, len(b.Bytes))
		copy(buf, b.Bytes)
		return io.NopCloser(bytes.NewReader(buf)), nil
	case BlobPath:
		if b.Path == "" {
			return nil, errors.New("blob path is empty")
		}
		return os.Open(b.Path)
	default:
		return nil, fmt.Errorf("unsupported blob kind %q", b.Kind)
	}
}
