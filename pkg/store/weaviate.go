package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/fault"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

const chunkClassName = "KnowledgeChunk"

// listPageSize caps each listing query; without an explicit limit the
// server applies its own default and silently truncates the result.
const listPageSize = 200

// WeaviateClient implements Client on top of a Weaviate instance.
// Folder scoping is modeled as a "folder" property on each object and
// trashing as a "trashed" flag, so a cleared folder can be replaced
// without touching other sources' chunks.
type WeaviateClient struct {
	client *weaviate.Client
}

// NewWeaviateClient creates a new Weaviate-backed document store client.
func NewWeaviateClient(scheme, host, apiKey string) (*WeaviateClient, error) {
	if host == "" {
		return nil, fmt.Errorf("weaviate host cannot be empty")
	}

	cfg := weaviate.Config{
		Scheme: scheme,
		Host:   host,
	}
	if apiKey != "" {
		cfg.AuthConfig = auth.ApiKey{Value: apiKey}
	}

	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %w", err)
	}

	return &WeaviateClient{client: client}, nil
}

// Initialize creates the chunk class schema if it does not exist.
func (c *WeaviateClient) Initialize(ctx context.Context) error {
	exists, err := c.client.Schema().ClassExistenceChecker().
		WithClassName(chunkClassName).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to check class existence: %w", err)
	}
	if exists {
		return nil
	}

	classObj := &models.Class{
		Class:       chunkClassName,
		Description: "A metadata-prefixed knowledge base text chunk",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{
				Name:        "name",
				DataType:    []string{"string"},
				Description: "File name of the chunk artifact",
			},
			{
				Name:        "folder",
				DataType:    []string{"string"},
				Description: "Destination folder identifier",
			},
			{
				Name:        "content",
				DataType:    []string{"text"},
				Description: "Chunk header and body text",
			},
			{
				Name:        "richDocument",
				DataType:    []string{"boolean"},
				Description: "Whether the chunk was imported as a rich document",
			},
			{
				Name:        "trashed",
				DataType:    []string{"boolean"},
				Description: "Soft-deletion marker",
			},
			{
				Name:        "uploadedAt",
				DataType:    []string{"date"},
				Description: "When the chunk was uploaded",
			},
		},
	}

	if err := c.client.Schema().ClassCreator().WithClass(classObj).Do(ctx); err != nil {
		return fmt.Errorf("failed to create class schema: %w", err)
	}
	return nil
}

// Upload stores one chunk object in the folder.
func (c *WeaviateClient) Upload(ctx context.Context, req UploadRequest) (string, error) {
	id := uuid.NewString()
	props := map[string]interface{}{
		"name":         req.Name,
		"folder":       req.Folder,
		"content":      req.Content,
		"richDocument": req.AsRichDocument,
		"trashed":      false,
		"uploadedAt":   time.Now().UTC().Format(time.RFC3339),
	}

	_, err := c.client.Data().Creator().
		WithClassName(chunkClassName).
		WithID(id).
		WithProperties(props).
		Do(ctx)
	if err != nil {
		var clientErr *fault.WeaviateClientError
		if errors.As(err, &clientErr) && clientErr.StatusCode == http.StatusRequestEntityTooLarge {
			return "", fmt.Errorf("%w: %s", ErrPayloadTooLarge, req.Name)
		}
		return "", fmt.Errorf("failed to store chunk: %w", err)
	}

	return id, nil
}

// List returns the non-trashed chunks in a folder.
func (c *WeaviateClient) List(ctx context.Context, folder string) ([]FileInfo, error) {
	where := filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{
			filters.Where().
				WithPath([]string{"folder"}).
				WithOperator(filters.Equal).
				WithValueString(folder),
			filters.Where().
				WithPath([]string{"trashed"}).
				WithOperator(filters.Equal).
				WithValueBoolean(false),
		})

	var files []FileInfo
	for offset := 0; ; offset += listPageSize {
		result, err := c.client.GraphQL().Get().
			WithClassName(chunkClassName).
			WithFields(
				graphql.Field{Name: "name"},
				graphql.Field{Name: "_additional", Fields: []graphql.Field{
					{Name: "id"},
				}},
			).
			WithWhere(where).
			WithLimit(listPageSize).
			WithOffset(offset).
			Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list folder %s: %w", folder, err)
		}
		if len(result.Errors) > 0 {
			return nil, fmt.Errorf("failed to list folder %s: %s", folder, result.Errors[0].Message)
		}

		page, err := parseFileList(result)
		if err != nil {
			return nil, err
		}
		files = append(files, page...)

		if len(page) < listPageSize {
			return files, nil
		}
	}
}

// Trash marks a chunk as trashed without removing it.
func (c *WeaviateClient) Trash(ctx context.Context, id string) error {
	err := c.client.Data().Updater().
		WithClassName(chunkClassName).
		WithID(id).
		WithProperties(map[string]interface{}{"trashed": true}).
		WithMerge().
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to trash object %s: %w", id, err)
	}
	return nil
}

// Delete permanently removes a chunk object.
func (c *WeaviateClient) Delete(ctx context.Context, id string) error {
	err := c.client.Data().Deleter().
		WithClassName(chunkClassName).
		WithID(id).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", id, err)
	}
	return nil
}

// parseFileList converts a GraphQL Get response into FileInfo entries.
func parseFileList(result *models.GraphQLResponse) ([]FileInfo, error) {
	get, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected graphql response shape: missing Get")
	}
	rawObjects, ok := get[chunkClassName].([]interface{})
	if !ok {
		// No objects for the class at all.
		return nil, nil
	}

	files := make([]FileInfo, 0, len(rawObjects))
	for _, raw := range rawObjects {
		obj, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}

		info := FileInfo{
			// Weaviate objects carry no per-item ACL; any chunk the
			// client can see it can also trash or delete.
			CanTrash:  true,
			CanDelete: true,
		}
		if name, ok := obj["name"].(string); ok {
			info.Name = name
		}
		if add, ok := obj["_additional"].(map[string]interface{}); ok {
			if id, ok := add["id"].(string); ok {
				info.ID = id
			}
		}
		if info.ID == "" {
			continue
		}
		files = append(files, info)
	}

	return files, nil
}
