package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"image/color"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngDataURL(t *testing.T, w, h int) string {
	t.Helper()
	img := imaging.New(w, h, color.NRGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestParseDataURL(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		wantType string
		wantErr  error
	}{
		{name: "png", in: "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("abc")), wantType: "image/png"},
		{name: "hosted url", in: "https://cdn.example.com/a.png", wantErr: ErrInvalidDataURL},
		{name: "not base64", in: "data:image/png,abc", wantErr: ErrInvalidDataURL},
		{name: "bad payload", in: "data:image/png;base64,@@@", wantErr: ErrInvalidDataURL},
		{name: "not an image", in: "data:text/html;base64,PGI+", wantErr: ErrNotAnImage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct, data, err := ParseDataURL(tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, ct)
			assert.Equal(t, []byte("abc"), data)
		})
	}
}

func TestParseDataURLTooLarge(t *testing.T) {
	huge := "data:image/png;base64," + strings.Repeat("A", maxImageBytes*2)
	_, _, err := ParseDataURL(huge)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestInlineStore(t *testing.T) {
	url := pngDataURL(t, 2, 2)
	got, err := InlineStore{}.UploadDataURL(context.Background(), FolderMessages, url)
	require.NoError(t, err)
	assert.Equal(t, url, got)

	_, err = InlineStore{}.UploadDataURL(context.Background(), FolderMessages, "nope")
	assert.Error(t, err)
}

type fakeUploader struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
}

func (f *fakeUploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	body, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	f.inputs = append(f.inputs, input)
	f.bodies = append(f.bodies, body)
	return &manager.UploadOutput{}, nil
}

func TestS3StoreUploadsMessageImage(t *testing.T) {
	up := &fakeUploader{}
	store := &S3Store{uploader: up, cfg: S3Config{Bucket: "chat", Region: "eu-west-1"}}

	url, err := store.UploadDataURL(context.Background(), FolderMessages, pngDataURL(t, 4, 4))
	require.NoError(t, err)

	require.Len(t, up.inputs, 1)
	key := *up.inputs[0].Key
	assert.True(t, strings.HasPrefix(key, "messages/"))
	assert.True(t, strings.HasSuffix(key, ".png"))
	assert.Equal(t, "chat", *up.inputs[0].Bucket)
	assert.Equal(t, "image/png", *up.inputs[0].ContentType)
	assert.Equal(t, "https://chat.s3.eu-west-1.amazonaws.com/"+key, url)
}

func TestS3StoreResizesProfilePicture(t *testing.T) {
	up := &fakeUploader{}
	store := &S3Store{uploader: up, cfg: S3Config{Bucket: "chat", PublicBaseURL: "https://img.example.com"}}

	url, err := store.UploadDataURL(context.Background(), FolderProfiles, pngDataURL(t, 1024, 600))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "https://img.example.com/profiles/"))

	img, err := imaging.Decode(bytes.NewReader(up.bodies[0]))
	require.NoError(t, err)
	assert.Equal(t, 512, img.Bounds().Dx())
	assert.Equal(t, 300, img.Bounds().Dy())
}

func TestS3StoreRejectsNonImage(t *testing.T) {
	up := &fakeUploader{}
	store := &S3Store{uploader: up, cfg: S3Config{Bucket: "chat"}}

	_, err := store.UploadDataURL(context.Background(), FolderMessages, "data:application/pdf;base64,AAAA")
	assert.ErrorIs(t, err, ErrNotAnImage)
	assert.Empty(t, up.inputs)
}

func TestPublicURL(t *testing.T) {
	store := &S3Store{cfg: S3Config{Bucket: "chat", Endpoint: "https://acct.r2.cloudflarestorage.com/"}}
	assert.Equal(t, "https://acct.r2.cloudflarestorage.com/chat/messages/a.png", store.publicURL("messages/a.png"))
}
