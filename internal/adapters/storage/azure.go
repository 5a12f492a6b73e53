package storage

import (
	"context"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/jobrunner/archivesync/internal/domain"
	"github.com/jobrunner/archivesync/internal/ports/output"
)

// AzureStorage implements ObjectStorage for Azure Blob Storage.
type AzureStorage struct {
	client    *azblob.Client
	container string
	prefix    string
}

// AzureConfig holds Azure Blob Storage configuration.
type AzureConfig struct {
	Container        string
	AccountName      string
	AccountKey       string
	ConnectionString string
	Prefix           string
}

// NewAzureStorage creates a new Azure Blob Storage adapter.
func NewAzureStorage(cfg AzureConfig) (*AzureStorage, error) {
	var client *azblob.Client
	var err error

	if cfg.ConnectionString != "" {
		client, err = azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	} else {
		url := "https://" + cfg.AccountName + ".blob.core.windows.net/"
		var cred *azblob.SharedKeyCredential
		cred, err = azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if err == nil {
			client, err = azblob.NewClientWithSharedKeyCredential(url, cred, nil)
		}
	}
	if err != nil {
		return nil, err
	}

	return &AzureStorage{
		client:    client,
		container: cfg.Container,
		prefix:    strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// List returns every blob under prefix, following the flat listing pager.
func (s *AzureStorage) List(ctx context.Context, prefix string) ([]output.StorageObject, error) {
	var objects []output.StorageObject

	full := s.fullKey(prefix)
	pager := s.client.NewListBlobsFlatPager(s.container, &azblob.ListBlobsFlatOptions{
		Prefix: &full,
	})

	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, &domain.StorageError{Operation: "list", Key: prefix, Err: err}
		}

		for _, blob := range page.Segment.BlobItems {
			objects = append(objects, s.blobToStorageObject(blob))
		}
	}

	return objects, nil
}

// blobToStorageObject converts an Azure blob to a StorageObject.
func (s *AzureStorage) blobToStorageObject(blob *container.BlobItem) output.StorageObject {
	obj := output.StorageObject{
		Key: s.relKey(*blob.Name),
	}

	if blob.Properties == nil {
		return obj
	}
	if blob.Properties.ContentLength != nil {
		obj.Size = *blob.Properties.ContentLength
	}
	if blob.Properties.LastModified != nil {
		obj.LastModified = blob.Properties.LastModified.Unix()
	}
	if blob.Properties.ETag != nil {
		obj.ETag = string(*blob.Properties.ETag)
	}
	return obj
}

// Put streams body into a block blob, replacing any existing blob.
func (s *AzureStorage) Put(ctx context.Context, key string, body io.Reader, _ int64) error {
	if _, err := s.client.UploadStream(ctx, s.container, s.fullKey(key), body, nil); err != nil {
		return &domain.StorageError{Operation: "put", Key: key, Err: err}
	}
	return nil
}

// Delete removes a blob; a blob that is already gone counts as deleted.
func (s *AzureStorage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteBlob(ctx, s.container, s.fullKey(key), nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil
		}
		return &domain.StorageError{Operation: "delete", Key: key, Err: err}
	}
	return nil
}

// fullKey returns the full blob name including prefix.
func (s *AzureStorage) fullKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

func (s *AzureStorage) relKey(name string) string {
	if s.prefix == "" {
		return name
	}
	return strings.TrimPrefix(strings.TrimPrefix(name, s.prefix), "/")
}
