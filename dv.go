package deltacheckpoint

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/RoaringBitmap/roaring"

	"github.com/polarsignals/deltacheckpoint/internal/fieldreader"
)

// decodeDeletionVector decodes the fixed five-field deletionVector
// sub-row. Any other field count is a schema error.
func decodeDeletionVector(row *fieldreader.Row) (*DeletionVectorEntry, error) {
	if n := row.NumFields(); n != 5 {
		return nil, &SchemaViolationError{Detail: fmt.Sprintf("deletionVector sub-row has %d fields, want 5", n)}
	}

	storageType, err := row.GetString("storageType")
	if err != nil {
		return nil, err
	}
	pathOrInlineDV, err := row.GetString("pathOrInlineDv")
	if err != nil {
		return nil, err
	}
	offset, err := row.GetOptionalInt("offset")
	if err != nil {
		return nil, err
	}
	sizeInBytes, err := row.GetInt("sizeInBytes")
	if err != nil {
		return nil, err
	}
	cardinality, err := row.GetLong("cardinality")
	if err != nil {
		return nil, err
	}

	return &DeletionVectorEntry{
		StorageType:    storageType,
		PathOrInlineDV: pathOrInlineDV,
		Offset:         offset,
		SizeInBytes:    sizeInBytes,
		Cardinality:    cardinality,
	}, nil
}

// inlineStorageType is the Delta protocol's storage type code for a
// deletion vector inlined directly in the checkpoint row rather than
// stored in a side file.
const inlineStorageType = "i"

// ExpandInline decodes an inline deletion vector's payload into a
// roaring bitmap of deleted row positions. It only applies to
// DeletionVectorEntry values whose StorageType is "i"; callers with a
// path-based (on-disk) deletion vector must read and decode the target
// file themselves.
//
// This assumes the inline payload, once base64-decoded, is a
// standard Roaring-format bitmap serialization; production Delta
// readers additionally handle the protocol's bit-packed fallback
// encoding, which is out of scope here.
func (d *DeletionVectorEntry) ExpandInline() (*roaring.Bitmap, error) {
	if d.StorageType != inlineStorageType {
		return nil, fmt.Errorf("deletion vector storage type %q is not inline", d.StorageType)
	}

	raw, err := base64.StdEncoding.DecodeString(d.PathOrInlineDV)
	if err != nil {
		return nil, fmt.Errorf("decode inline deletion vector: %w", err)
	}

	bm := roaring.New()
	if _, err := bm.ReadFrom(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("parse inline deletion vector bitmap: %w", err)
	}
	return bm, nil
}
