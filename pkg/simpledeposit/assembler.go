package simpledeposit

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// entryPayload pairs a package entry with the bytes that will travel to the
// archive as part of its business object.
type entryPayload struct {
	entry PackageEntry
	file  File
}

// assembler turns raw uploaded content into a Package plus per-entry
// payloads ready for submission. It never persists anything itself.
type assembler struct {
	minter IDMinter
}

// assemble reads the upload and produces one entry per regular file. For a
// single-file upload that is exactly one entry named after the upload; for a
// container every non-directory zip entry becomes one, with its directory
// collapsed into RelativePath. No entry is silently dropped: an empty
// container yields a Package with zero entries, which callers treat as an
// ingest error.
func (a *assembler) assemble(ctx context.Context, fileName string, r io.Reader, container bool, mimeType string) (*Package, []*entryPayload, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, &ExtractionError{FileName: fileName, Err: err}
	}

	pkg := &Package{
		ID:        uuid.New(),
		FileName:  fileName,
		Type:      PackageTypeSimpleFile,
		CreatedAt: time.Now().UTC(),
	}

	var payloads []*entryPayload
	if container {
		pkg.Type = PackageTypeContainer
		payloads, err = a.explode(ctx, fileName, data)
		if err != nil {
			return nil, nil, err
		}
	} else {
		id, err := a.minter.MintID(ctx, ObjectTypeDataItem)
		if err != nil {
			return nil, nil, err
		}
		payloads = []*entryPayload{{
			entry: PackageEntry{BusinessObjectID: id, FileName: fileName, Size: int64(len(data))},
			file:  File{Name: fileName, MimeType: mimeType, Content: data},
		}}
	}

	for _, p := range payloads {
		pkg.Entries = append(pkg.Entries, p.entry)
	}
	return pkg, payloads, nil
}

// explode unpacks a zip container. Directory entries carry no content and are
// skipped; their structure survives as the relative path on each file entry.
func (a *assembler) explode(ctx context.Context, fileName string, data []byte) ([]*entryPayload, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &ExtractionError{FileName: fileName, Err: err}
	}

	var payloads []*entryPayload
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() || strings.HasSuffix(zf.Name, "/") {
			continue
		}

		rc, err := zf.Open()
		if err != nil {
			return nil, &ExtractionError{FileName: fileName, Err: err}
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, &ExtractionError{FileName: fileName, Err: err}
		}

		id, err := a.minter.MintID(ctx, ObjectTypeDataItem)
		if err != nil {
			return nil, err
		}

		name := path.Base(zf.Name)
		rel := path.Dir(zf.Name)
		if rel == "." {
			rel = ""
		}

		payloads = append(payloads, &entryPayload{
			entry: PackageEntry{
				BusinessObjectID: id,
				FileName:         name,
				RelativePath:     rel,
				Size:             int64(len(content)),
			},
			file: File{Name: name, RelativePath: rel, Content: content},
		})
	}

	return payloads, nil
}

// UUIDMinter mints random business object identifiers. It is the default
// IDMinter when no identifier service is configured.
type UUIDMinter struct{}

// NewUUIDMinter creates a UUID-backed identifier minter
func NewUUIDMinter() IDMinter {
	return UUIDMinter{}
}

// MintID returns a fresh identifier prefixed by the object type, e.g.
// "data_item:3f2a...". The prefix keeps ids readable in relationship edges.
func (UUIDMinter) MintID(ctx context.Context, objectType ObjectType) (string, error) {
	return string(objectType) + ":" + uuid.NewString(), nil
}
