package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/turtacn/argproxy/internal/domain/models"
	"github.com/turtacn/argproxy/pkg/errors"
)

func signedLink() models.SignedURL {
	return models.SignedURL{
		Identity: models.Identity{ChannelID: 10, AttachmentID: 20, Filename: "file.png"},
		Window: &models.ValidityWindow{
			ExpiresAt: time.Unix(0x65b0, 0).UTC(),
			IssuedAt:  time.Unix(0x65a9, 0).UTC(),
			Signature: []byte{0xdd, 0xee, 0xff},
		},
	}
}

func mustEncode(t *testing.T, v models.SignedURL) []byte {
	t.Helper()
	b, err := Encode(v)
	require.NoError(t, err)
	return b
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	values := map[string]models.SignedURL{
		"with window":    signedLink(),
		"without window": {Identity: models.Identity{ChannelID: 1, AttachmentID: 2, Filename: "a.txt"}},
		"zero ids":       {Identity: models.Identity{Filename: "z"}},
		"negative instants": {
			Identity: models.Identity{ChannelID: 3, AttachmentID: 4, Filename: "old.bin"},
			Window: &models.ValidityWindow{
				ExpiresAt: time.Unix(-86400, 0).UTC(),
				IssuedAt:  time.Unix(models.MinUnixSeconds, 0).UTC(),
				Signature: []byte{},
			},
		},
	}
	for name, v := range values {
		t.Run(name, func(t *testing.T) {
			got, err := DecodeSignedURL(mustEncode(t, v))
			require.NoError(t, err)
			assert.True(t, v.Equal(got), "got %+v", got)
		})
	}
}

func TestEncode_WindowPresenceSurvivesZeroValues(t *testing.T) {
	v := models.SignedURL{
		Identity: models.Identity{ChannelID: 1, AttachmentID: 2, Filename: "a"},
		Window: &models.ValidityWindow{
			ExpiresAt: time.Unix(0, 0).UTC(),
			IssuedAt:  time.Unix(0, 0).UTC(),
			Signature: []byte{},
		},
	}
	rec, err := Decode(mustEncode(t, v))
	require.NoError(t, err)
	require.NotNil(t, rec.ExpiryInfo)
	assert.Equal(t, int64(0), rec.ExpiryInfo.ExpiryTimeSeconds)
}

func TestEncode_MatchesProtobufLayout(t *testing.T) {
	got := mustEncode(t, signedLink())

	var want []byte
	want = protowire.AppendTag(want, 1, protowire.BytesType)
	want = protowire.AppendString(want, "file.png")
	want = protowire.AppendTag(want, 2, protowire.VarintType)
	want = protowire.AppendVarint(want, 10)
	want = protowire.AppendTag(want, 3, protowire.VarintType)
	want = protowire.AppendVarint(want, 20)

	var info []byte
	info = protowire.AppendTag(info, 1, protowire.VarintType)
	info = protowire.AppendVarint(info, 0x65b0)
	info = protowire.AppendTag(info, 2, protowire.VarintType)
	info = protowire.AppendVarint(info, 0x65a9)
	info = protowire.AppendTag(info, 3, protowire.BytesType)
	info = protowire.AppendBytes(info, []byte{0xdd, 0xee, 0xff})

	want = protowire.AppendTag(want, 4, protowire.BytesType)
	want = protowire.AppendBytes(want, info)

	assert.Equal(t, want, got)
}

func TestDecode_SkipsUnknownFields(t *testing.T) {
	b := mustEncode(t, signedLink())
	b = protowire.AppendTag(b, 15, protowire.BytesType)
	b = protowire.AppendString(b, "future")
	b = protowire.AppendTag(b, 16, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, 42)

	got, err := DecodeSignedURL(b)
	require.NoError(t, err)
	assert.True(t, signedLink().Equal(got))
}

func TestDecode_Errors(t *testing.T) {
	valid := mustEncode(t, signedLink())

	badUTF8 := protowire.AppendTag(nil, 1, protowire.BytesType)
	badUTF8 = protowire.AppendBytes(badUTF8, []byte{0xff, 0xfe})

	wrongType := protowire.AppendTag(nil, 2, protowire.BytesType)
	wrongType = protowire.AppendString(wrongType, "10")

	tests := map[string][]byte{
		"truncated":          valid[:len(valid)-2],
		"dangling tag":       {0x08},
		"invalid utf8 name":  badUTF8,
		"wrong wire type":    wrongType,
		"garbage":            {0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		"zero field number":  {0x00},
		"truncated expiry":   append(protowire.AppendTag(nil, 4, protowire.BytesType), 0x05, 0x08),
	}
	for name, b := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(b)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.CodeDecode), "unexpected error: %v", err)
		})
	}
}

func TestToSignedURL_OutOfRange(t *testing.T) {
	rec := FromSignedURL(signedLink())
	rec.ExpiryInfo.ExpiryTimeSeconds = models.MaxUnixSeconds + 1

	_, err := ToSignedURL(rec)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeConversion))

	rec = FromSignedURL(signedLink())
	rec.ExpiryInfo.IsSeconds = models.MinUnixSeconds - 1
	b, err := EncodeRecord(rec)
	require.NoError(t, err)
	_, err = DecodeSignedURL(b)
	assert.True(t, errors.HasCode(err, errors.CodeConversion))
}

func TestEncode_RejectsInvalidUTF8FileName(t *testing.T) {
	v := signedLink()
	v.Filename = "\xff.png"

	b, err := Encode(v)
	require.Error(t, err)
	assert.Nil(t, b)
	assert.True(t, errors.HasCode(err, errors.CodeConversion), "unexpected error: %v", err)
}

func TestDecode_EmptyInput(t *testing.T) {
	rec, err := Decode(nil)
	require.NoError(t, err)
	assert.Equal(t, StoredRecord{}, rec)
}
