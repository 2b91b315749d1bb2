// Package codec converts signed links to and from the binary records kept in the link store.
//
// Records use the protobuf wire format with the following schema. Field numbers are part of
// the storage contract and must never be reused:
//
//	message StoredRecord {
//	  string file_name = 1;
//	  uint64 channel_id = 2;
//	  uint64 attachment_id = 3;
//	  optional ExpiryInfo expiry_info = 4;
//	}
//	message ExpiryInfo {
//	  int64 expiry_time_seconds = 1;
//	  int64 is_seconds = 2;
//	  bytes hm = 3;
//	}
package codec

import (
	"fmt"
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/turtacn/argproxy/internal/domain/models"
	"github.com/turtacn/argproxy/pkg/errors"
)

const (
	fieldFileName     protowire.Number = 1
	fieldChannelID    protowire.Number = 2
	fieldAttachmentID protowire.Number = 3
	fieldExpiryInfo   protowire.Number = 4

	fieldExpiryTimeSeconds protowire.Number = 1
	fieldIsSeconds         protowire.Number = 2
	fieldHm                protowire.Number = 3
)

// StoredRecord is the persisted form of a signed link.
type StoredRecord struct {
	FileName     string
	ChannelID    uint64
	AttachmentID uint64
	ExpiryInfo   *ExpiryInfo
}

// ExpiryInfo is the persisted form of a validity window.
type ExpiryInfo struct {
	ExpiryTimeSeconds int64
	IsSeconds         int64
	Hm                []byte
}

// FromSignedURL maps a link onto its stored representation.
func FromSignedURL(s models.SignedURL) StoredRecord {
	rec := StoredRecord{
		FileName:     s.Filename,
		ChannelID:    s.ChannelID,
		AttachmentID: s.AttachmentID,
	}
	if w := s.Window; w != nil {
		rec.ExpiryInfo = &ExpiryInfo{
			ExpiryTimeSeconds: w.ExpiresAt.Unix(),
			IsSeconds:         w.IssuedAt.Unix(),
			Hm:                append([]byte(nil), w.Signature...),
		}
	}
	return rec
}

// ToSignedURL converts a stored record back to a link. It fails when the window's
// instants cannot be represented, which only happens for corrupt or foreign records.
func ToSignedURL(rec StoredRecord) (models.SignedURL, error) {
	out := models.SignedURL{
		Identity: models.Identity{
			ChannelID:    rec.ChannelID,
			AttachmentID: rec.AttachmentID,
			Filename:     rec.FileName,
		},
	}
	if info := rec.ExpiryInfo; info != nil {
		expiresAt, ok := models.InstantFromUnix(info.ExpiryTimeSeconds)
		if !ok {
			return models.SignedURL{}, errors.ErrConversion(
				fmt.Sprintf("expiry_time_seconds %d is out of range", info.ExpiryTimeSeconds))
		}
		issuedAt, ok := models.InstantFromUnix(info.IsSeconds)
		if !ok {
			return models.SignedURL{}, errors.ErrConversion(
				fmt.Sprintf("is_seconds %d is out of range", info.IsSeconds))
		}
		signature := info.Hm
		if signature == nil {
			signature = []byte{}
		}
		out.Window = &models.ValidityWindow{
			ExpiresAt: expiresAt,
			IssuedAt:  issuedAt,
			Signature: signature,
		}
	}
	return out, nil
}

// Encode serialises a link. Zero-valued scalars are omitted as in proto3.
func Encode(s models.SignedURL) ([]byte, error) {
	return EncodeRecord(FromSignedURL(s))
}

// EncodeRecord serialises a stored record. It refuses file names Decode would reject.
func EncodeRecord(rec StoredRecord) ([]byte, error) {
	if !utf8.ValidString(rec.FileName) {
		return nil, errors.ErrConversion("file_name is not valid utf-8")
	}
	var b []byte
	if rec.FileName != "" {
		b = protowire.AppendTag(b, fieldFileName, protowire.BytesType)
		b = protowire.AppendString(b, rec.FileName)
	}
	if rec.ChannelID != 0 {
		b = protowire.AppendTag(b, fieldChannelID, protowire.VarintType)
		b = protowire.AppendVarint(b, rec.ChannelID)
	}
	if rec.AttachmentID != 0 {
		b = protowire.AppendTag(b, fieldAttachmentID, protowire.VarintType)
		b = protowire.AppendVarint(b, rec.AttachmentID)
	}
	if info := rec.ExpiryInfo; info != nil {
		b = protowire.AppendTag(b, fieldExpiryInfo, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeExpiryInfo(info))
	}
	return b, nil
}

func encodeExpiryInfo(info *ExpiryInfo) []byte {
	var b []byte
	if info.ExpiryTimeSeconds != 0 {
		b = protowire.AppendTag(b, fieldExpiryTimeSeconds, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(info.ExpiryTimeSeconds))
	}
	if info.IsSeconds != 0 {
		b = protowire.AppendTag(b, fieldIsSeconds, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(info.IsSeconds))
	}
	if len(info.Hm) > 0 {
		b = protowire.AppendTag(b, fieldHm, protowire.BytesType)
		b = protowire.AppendBytes(b, info.Hm)
	}
	return b
}

// Decode parses a stored record. A record without expiry_info decodes with a nil ExpiryInfo.
func Decode(b []byte) (StoredRecord, error) {
	var rec StoredRecord
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return StoredRecord{}, decodeErr("tag", n)
		}
		b = b[n:]

		switch {
		case num == fieldFileName && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return StoredRecord{}, decodeErr("file_name", n)
			}
			if !utf8.Valid(v) {
				return StoredRecord{}, errors.ErrDecode("file_name is not valid utf-8")
			}
			rec.FileName = string(v)
			b = b[n:]
		case num == fieldChannelID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return StoredRecord{}, decodeErr("channel_id", n)
			}
			rec.ChannelID = v
			b = b[n:]
		case num == fieldAttachmentID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return StoredRecord{}, decodeErr("attachment_id", n)
			}
			rec.AttachmentID = v
			b = b[n:]
		case num == fieldExpiryInfo && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return StoredRecord{}, decodeErr("expiry_info", n)
			}
			info, err := decodeExpiryInfo(v)
			if err != nil {
				return StoredRecord{}, err
			}
			rec.ExpiryInfo = info
			b = b[n:]
		case num == fieldFileName || num == fieldChannelID || num == fieldAttachmentID || num == fieldExpiryInfo:
			return StoredRecord{}, errors.ErrDecode(fmt.Sprintf("field %d has unexpected wire type %d", num, typ))
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return StoredRecord{}, decodeErr("unknown field", n)
			}
			b = b[n:]
		}
	}
	return rec, nil
}

func decodeExpiryInfo(b []byte) (*ExpiryInfo, error) {
	info := &ExpiryInfo{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, decodeErr("expiry_info tag", n)
		}
		b = b[n:]

		switch {
		case num == fieldExpiryTimeSeconds && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, decodeErr("expiry_time_seconds", n)
			}
			info.ExpiryTimeSeconds = int64(v)
			b = b[n:]
		case num == fieldIsSeconds && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, decodeErr("is_seconds", n)
			}
			info.IsSeconds = int64(v)
			b = b[n:]
		case num == fieldHm && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, decodeErr("hm", n)
			}
			info.Hm = append([]byte(nil), v...)
			b = b[n:]
		case num == fieldExpiryTimeSeconds || num == fieldIsSeconds || num == fieldHm:
			return nil, errors.ErrDecode(fmt.Sprintf("expiry_info field %d has unexpected wire type %d", num, typ))
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, decodeErr("expiry_info unknown field", n)
			}
			b = b[n:]
		}
	}
	return info, nil
}

// DecodeSignedURL is Decode followed by ToSignedURL.
func DecodeSignedURL(b []byte) (models.SignedURL, error) {
	rec, err := Decode(b)
	if err != nil {
		return models.SignedURL{}, err
	}
	return ToSignedURL(rec)
}

func decodeErr(what string, n int) error {
	return errors.ErrDecode(fmt.Sprintf("malformed %s", what)).WithCause(protowire.ParseError(n))
}

// ProtoCodec adapts the package functions to the resolver's RecordCodec contract.
type ProtoCodec struct{}

// NewProtoCodec returns the protobuf record codec.
func NewProtoCodec() ProtoCodec { return ProtoCodec{} }

// Encode implements service.RecordCodec.
func (ProtoCodec) Encode(link models.SignedURL) ([]byte, error) { return Encode(link) }

// Decode implements service.RecordCodec.
func (ProtoCodec) Decode(value []byte) (models.SignedURL, error) { return DecodeSignedURL(value) }
