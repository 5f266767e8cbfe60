package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"nearish-backend/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// MemoryStore is the storage the memory service needs
type MemoryStore interface {
	Create(ctx context.Context, m *models.Memory) error
	GetByID(ctx context.Context, id string) (*models.Memory, error)
	ListByIdentities(ctx context.Context, identityIDs []string) ([]*models.Memory, error)
	Update(ctx context.Context, m *models.Memory) error
	Delete(ctx context.Context, id string) error
}

// MemoryService handles memories and their S3-backed images
type MemoryService struct {
	store    MemoryStore
	accounts AuthStore
	s3Client *s3.Client
	s3Bucket string
}

// NewMemoryService creates a new memory service
func NewMemoryService(
	store MemoryStore,
	accounts AuthStore,
	awsRegion, s3Bucket, accessKey, secretKey, endpoint string,
) (*MemoryService, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(awsRegion),
	}
	if accessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &MemoryService{
		store:    store,
		accounts: accounts,
		s3Client: s3Client,
		s3Bucket: s3Bucket,
	}, nil
}

// UploadURLResponse carries a pre-signed PUT URL for a memory image
type UploadURLResponse struct {
	UploadURL string `json:"upload_url"`
	ImagePath string `json:"image_path"`
	ExpiresIn int    `json:"expires_in"`
}

// ImageUploadURL generates a pre-signed URL the client uploads a memory image
// to; the returned image path is then attached to a memory.
func (s *MemoryService) ImageUploadURL(ctx context.Context, identity *models.Identity, filename, contentType string) (*UploadURLResponse, error) {
	ext := "jpg"
	if i := strings.LastIndex(filename, "."); i >= 0 && i < len(filename)-1 {
		ext = filename[i+1:]
	}
	imagePath := fmt.Sprintf("%s/%s.%s", identity.ID, uuid.New().String(), ext)

	presignClient := s3.NewPresignClient(s.s3Client)
	request, err := presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.s3Bucket),
		Key:         aws.String(imagePath),
		ContentType: aws.String(contentType),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = 5 * time.Minute
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate pre-signed URL: %w", err)
	}

	return &UploadURLResponse{
		UploadURL: request.URL,
		ImagePath: imagePath,
		ExpiresIn: 300,
	}, nil
}

func (s *MemoryService) presignGet(ctx context.Context, imagePath string) *string {
	presignClient := s3.NewPresignClient(s.s3Client)
	request, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.s3Bucket),
		Key:    aws.String(imagePath),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = time.Hour
	})
	if err != nil {
		log.Error().Err(err).Str("image_path", imagePath).Msg("Failed to presign image URL")
		return nil
	}
	return &request.URL
}

// MemoryInput carries the mutable fields of a memory
type MemoryInput struct {
	Title        *string    `json:"title"`
	Description  *string    `json:"description"`
	Date         *time.Time `json:"date"`
	Latitude     *float64   `json:"latitude"`
	Longitude    *float64   `json:"longitude"`
	LocationName *string    `json:"location_name"`
	ImagePath    *string    `json:"image_path"`
}

// MemoryView is a memory as returned to clients, with a presigned image URL
type MemoryView struct {
	*models.Memory
	ImageURL   *string `json:"image_url"`
	AuthorName string  `json:"author_name"`
	IsMine     bool    `json:"is_mine"`
}

// Create stores a new memory for an identity
func (s *MemoryService) Create(ctx context.Context, identity *models.Identity, in MemoryInput) (*MemoryView, error) {
	if in.Title == nil || *in.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	date := time.Now().UTC()
	if in.Date != nil {
		date = *in.Date
	}

	memory := &models.Memory{
		ID:           uuid.New().String(),
		IdentityID:   identity.ID,
		Title:        *in.Title,
		Description:  in.Description,
		Date:         date,
		ImagePath:    in.ImagePath,
		Latitude:     in.Latitude,
		Longitude:    in.Longitude,
		LocationName: in.LocationName,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.Create(ctx, memory); err != nil {
		return nil, err
	}
	return s.view(ctx, memory, identity, "Me"), nil
}

// Update modifies a memory; only the author may do so
func (s *MemoryService) Update(ctx context.Context, identity *models.Identity, memoryID string, in MemoryInput) (*MemoryView, error) {
	memory, err := s.store.GetByID(ctx, memoryID)
	if err != nil {
		return nil, err
	}
	if memory.IdentityID != identity.ID {
		return nil, models.ErrNotOwner
	}

	if in.Title != nil {
		memory.Title = *in.Title
	}
	if in.Description != nil {
		memory.Description = in.Description
	}
	if in.Date != nil {
		memory.Date = *in.Date
	}
	if in.Latitude != nil {
		memory.Latitude = in.Latitude
	}
	if in.Longitude != nil {
		memory.Longitude = in.Longitude
	}
	if in.LocationName != nil {
		memory.LocationName = in.LocationName
	}
	if in.ImagePath != nil {
		if memory.ImagePath != nil && *memory.ImagePath != *in.ImagePath {
			s.deleteImage(ctx, *memory.ImagePath)
		}
		memory.ImagePath = in.ImagePath
	}

	if err := s.store.Update(ctx, memory); err != nil {
		return nil, err
	}
	return s.view(ctx, memory, identity, "Me"), nil
}

// Delete removes a memory and its image; only the author may do so
func (s *MemoryService) Delete(ctx context.Context, identity *models.Identity, memoryID string) error {
	memory, err := s.store.GetByID(ctx, memoryID)
	if err != nil {
		return err
	}
	if memory.IdentityID != identity.ID {
		return models.ErrNotOwner
	}

	if memory.ImagePath != nil {
		s.deleteImage(ctx, *memory.ImagePath)
	}
	return s.store.Delete(ctx, memoryID)
}

func (s *MemoryService) deleteImage(ctx context.Context, imagePath string) {
	_, err := s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.s3Bucket),
		Key:    aws.String(imagePath),
	})
	if err != nil {
		log.Error().Err(err).Str("image_path", imagePath).Msg("Failed to delete memory image")
	}
}

// List returns the identity's and its partner's memories, newest first
func (s *MemoryService) List(ctx context.Context, identity *models.Identity, partner *models.Identity) ([]*MemoryView, error) {
	ids := []string{identity.ID}
	authorNames := map[string]string{identity.ID: "Me"}
	if partner != nil {
		ids = append(ids, partner.ID)
		authorNames[partner.ID] = s.accountName(ctx, partner, "Partner")
	}

	memories, err := s.store.ListByIdentities(ctx, ids)
	if err != nil {
		return nil, err
	}

	views := make([]*MemoryView, 0, len(memories))
	for _, m := range memories {
		views = append(views, s.view(ctx, m, identity, authorNames[m.IdentityID]))
	}
	return views, nil
}

func (s *MemoryService) accountName(ctx context.Context, identity *models.Identity, fallback string) string {
	account, err := s.accounts.GetAccountByID(ctx, identity.AccountID)
	if err != nil || account.Name == nil || *account.Name == "" {
		return fallback
	}
	return *account.Name
}

func (s *MemoryService) view(ctx context.Context, m *models.Memory, viewer *models.Identity, authorName string) *MemoryView {
	view := &MemoryView{
		Memory:     m,
		AuthorName: authorName,
		IsMine:     m.IdentityID == viewer.ID,
	}
	if m.ImagePath != nil {
		view.ImageURL = s.presignGet(ctx, *m.ImagePath)
	}
	return view
}
