// Package storage fetches uploaded documents from S3 and saves job results
// back. Uploads from the web app may be password-protected with one of two
// envelope formats; both are detected by magic number.
package storage

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/pbkdf2"
)

const (
	magicGCM = "GCM3NCR0"
	magicCBC = "3NCR0PTD"

	pbkdf2Iterations = 100000
)

// ObjectInfo describes a downloaded object.
type ObjectInfo struct {
	OriginalName string
	ContentType  string
	Size         int64
	Encrypted    bool
}

// Client wraps the S3 API for document fetch and result save.
type Client struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
}

// Options configures the S3 connection. AccessKey and SecretKey are only
// needed for self-hosted endpoints; on AWS the default credential chain is
// used when they are empty.
type Options struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// New builds a client for the given bucket. A non-empty endpoint overrides
// the AWS default, which lets tests and self-hosted deployments point at
// MinIO.
func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("storage bucket is not configured")
	}
	loadOpts := []func(*awscfg.LoadOptions) error{awscfg.WithRegion(opts.Region)}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	cli := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &Client{
		client:   cli,
		uploader: manager.NewUploader(cli),
		bucket:   opts.Bucket,
	}, nil
}

// Download fetches an object and decrypts it when it carries a known
// encryption envelope. Objects without an envelope are returned as is.
func (c *Client) Download(ctx context.Context, key, password string) ([]byte, *ObjectInfo, error) {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("get s3 object %s: %w", key, err)
	}
	defer out.Body.Close()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read s3 object %s: %w", key, err)
	}

	info := &ObjectInfo{}
	if out.ContentLength != nil {
		info.Size = *out.ContentLength
	}
	if out.ContentType != nil {
		info.ContentType = *out.ContentType
	}
	for k, v := range out.Metadata {
		if strings.EqualFold(k, "name") {
			info.OriginalName = v
		}
	}

	data, encrypted, err := decryptEnvelope(raw, password)
	if err != nil {
		return nil, nil, fmt.Errorf("decrypt %s: %w", key, err)
	}
	info.Encrypted = encrypted

	log.Debug().Str("key", key).Bool("encrypted", encrypted).Int("size", len(data)).Str("name", info.OriginalName).Msg("Downloaded document")
	return data, info, nil
}

// UploadResult saves result bytes under key via the multipart uploader.
func (c *Client) UploadResult(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("upload result %s: %w", key, err)
	}
	log.Debug().Str("key", key).Int("size", len(data)).Msg("Uploaded result")
	return nil
}

// decryptEnvelope detects the encryption format by magic number. The second
// return reports whether the object was encrypted at all.
func decryptEnvelope(raw []byte, password string) ([]byte, bool, error) {
	if len(raw) < 8 {
		return raw, false, nil
	}
	switch string(raw[:8]) {
	case magicGCM:
		if password == "" {
			return nil, true, fmt.Errorf("object is encrypted but no password configured")
		}
		data, err := decryptGCM(raw, password)
		return data, true, err
	case magicCBC:
		if password == "" {
			return nil, true, fmt.Errorf("object is encrypted but no password configured")
		}
		data, err := decryptCBC(raw, password)
		return data, true, err
	default:
		return raw, false, nil
	}
}

// decryptGCM handles: magic(8) + salt(16) + nonce(12) + ciphertext + tag(16).
func decryptGCM(raw []byte, password string) ([]byte, error) {
	if len(raw) < 8+16+12+16 {
		return nil, fmt.Errorf("gcm envelope too short: %d bytes", len(raw))
	}
	salt := raw[8:24]
	nonce := raw[24:36]
	ciphertext := raw[36:]

	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("gcm decrypt: %w", err)
	}
	return plaintext, nil
}

// decryptCBC handles the older upload format:
// magic(8) + hash(32) + length(8) + salt(16) + iv(16) + ciphertext.
func decryptCBC(raw []byte, password string) ([]byte, error) {
	if len(raw) < 8+32+8+16+16 {
		return nil, fmt.Errorf("cbc envelope too short: %d bytes", len(raw))
	}
	storedHash := raw[8:40]
	length := binary.BigEndian.Uint64(raw[40:48])
	encrypted := raw[48:]
	if uint64(len(encrypted)) != length {
		return nil, fmt.Errorf("length mismatch: header %d, body %d", length, len(encrypted))
	}

	calculated := sha256.Sum256(encrypted)
	if !bytes.Equal(storedHash, calculated[:]) {
		return nil, fmt.Errorf("integrity hash mismatch")
	}

	salt := encrypted[:16]
	iv := encrypted[16:32]
	ciphertext := encrypted[32:]
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext not block aligned")
	}

	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	unpadded, err := stripPKCS7(plaintext)
	if err != nil {
		// Oldest uploads were written without padding.
		return plaintext, nil
	}
	return unpadded, nil
}

func stripPKCS7(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return nil, fmt.Errorf("invalid padding length %d", n)
	}
	for i := len(data) - n; i < len(data); i++ {
		if data[i] != byte(n) {
			return nil, fmt.Errorf("invalid padding byte at %d", i)
		}
	}
	return data[:len(data)-n], nil
}
