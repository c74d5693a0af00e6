package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/ammar1510/chatty/internal/logger"
)

var log = logger.New("storage")

// profileMaxDimension bounds both sides of an uploaded profile picture
const profileMaxDimension = 512

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Config is everything NewS3Store needs. Endpoint is set for S3-compatible
// stores such as R2 or MinIO.
type S3Config struct {
	Region          string
	Bucket          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string
}

// S3Store uploads images to an S3 bucket
type S3Store struct {
	uploader uploader
	cfg      S3Config
}

func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	var (
		awsCfg aws.Config
		err    error
	)
	if cfg.AccessKeyID != "" {
		awsCfg = aws.Config{
			Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
			Region:      cfg.Region,
		}
	} else {
		awsCfg, err = awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(cfg.Region))
		if err != nil {
			return nil, err
		}
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{uploader: manager.NewUploader(client), cfg: cfg}, nil
}

func (s *S3Store) UploadDataURL(ctx context.Context, folder, dataURL string) (string, error) {
	contentType, data, err := ParseDataURL(dataURL)
	if err != nil {
		return "", err
	}

	if folder == FolderProfiles {
		resized, resizedType, err := fitImage(data, contentType, profileMaxDimension)
		if err != nil {
			log.Warn("Could not resize profile picture, uploading original: %v", err)
		} else {
			data, contentType = resized, resizedType
		}
	}

	key := fmt.Sprintf("%s/%s%s", folder, uuid.NewString(), extension(contentType))
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", err
	}

	log.Debug("Uploaded %s (%d bytes)", key, len(data))
	return s.publicURL(key), nil
}

func (s *S3Store) publicURL(key string) string {
	escaped := (&url.URL{Path: key}).EscapedPath()
	switch {
	case s.cfg.PublicBaseURL != "":
		return s.cfg.PublicBaseURL + "/" + escaped
	case s.cfg.Endpoint != "":
		return strings.TrimRight(s.cfg.Endpoint, "/") + "/" + s.cfg.Bucket + "/" + escaped
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, escaped)
	}
}

func extension(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ""
	}
}

// fitImage scales data down so neither side exceeds maxDim. PNGs stay PNG,
// everything else is re-encoded as JPEG.
func fitImage(data []byte, contentType string, maxDim int) ([]byte, string, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", err
	}

	b := img.Bounds()
	if b.Dx() > maxDim || b.Dy() > maxDim {
		img = imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	}

	format, outType := imaging.JPEG, "image/jpeg"
	if contentType == "image/png" {
		format, outType = imaging.PNG, "image/png"
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), outType, nil
}
