package objectstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MemoryClient is an in-process fake of Client for tests.
type MemoryClient struct {
	mu      sync.Mutex
	objects map[string]storedObject
	now     func() time.Time
}

type storedObject struct {
	body     []byte
	metadata map[string]string
	modified time.Time
}

// NewMemoryClient returns an empty MemoryClient.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{objects: make(map[string]storedObject), now: time.Now}
}

func (c *MemoryClient) Put(ctx context.Context, in PutInput) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	body := append([]byte(nil), in.Body...)
	md := make(map[string]string, len(in.Metadata))
	for k, v := range in.Metadata {
		md[k] = v
	}
	c.objects[in.Key] = storedObject{body: body, metadata: md, modified: c.now()}
	return nil
}

func (c *MemoryClient) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	obj, ok := c.objects[key]
	if !ok {
		return nil, fmt.Errorf("objectstore: get %s: not found", key)
	}
	return append([]byte(nil), obj.body...), nil
}

func (c *MemoryClient) Head(ctx context.Context, key string) (Object, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	obj, ok := c.objects[key]
	if !ok {
		return Object{}, fmt.Errorf("objectstore: head %s: not found", key)
	}
	return Object{Key: key, Size: int64(len(obj.body)), LastModified: obj.modified, Metadata: obj.metadata}, nil
}

func (c *MemoryClient) List(ctx context.Context, prefix string) ([]Object, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Object
	for key, obj := range c.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		out = append(out, Object{Key: key, Size: int64(len(obj.body)), LastModified: obj.modified, Metadata: obj.metadata})
	}
	return out, nil
}

func (c *MemoryClient) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.objects, key)
	return nil
}
