package service

import (
	"bytes"
	"code_arena_backend/internal/config"
	"code_arena_backend/pkg/logger"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// 归档对象的文件后缀，按判题引擎 language_id
var languageExtensions = map[int]string{
	63: ".js",
	71: ".py",
	54: ".cpp",
	62: ".java",
}

// StorageService 把通过题目的代码归档到 MinIO 对象存储
type StorageService struct {
	client *minio.Client
	bucket string
}

func NewStorageService(cfg *config.StorageConfig) (*StorageService, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds: credentials.NewStaticV4(cfg.MinioAccessID, cfg.MinioSecret, ""),
	})
	if err != nil {
		return nil, fmt.Errorf("minio client init failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("minio bucket check failed: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("minio bucket create failed: %w", err)
		}
	}

	return &StorageService{client: client, bucket: cfg.MinioBucket}, nil
}

// ArchiveAcceptedCode 归档一份通过的提交代码。
// 对象路径：accepted/<challengeID>/<userID>/<uuid><ext>
func (s *StorageService) ArchiveAcceptedCode(userID, challengeID uint, languageID int, code string) error {
	ext, ok := languageExtensions[languageID]
	if !ok {
		ext = ".txt"
	}
	objectName := fmt.Sprintf("accepted/%d/%d/%s%s", challengeID, userID, uuid.New().String(), ext)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	payload := []byte(code)
	_, err := s.client.PutObject(ctx, s.bucket, objectName,
		bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "text/plain; charset=utf-8"})
	if err != nil {
		return err
	}

	logger.Log.Info("accepted code archived",
		zap.String("object", objectName),
		zap.Uint("user_id", userID),
		zap.Uint("challenge_id", challengeID))
	return nil
}
