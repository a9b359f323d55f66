package token

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkoukk/tiktoken-go"
)

const defaultEncoding = "cl100k_base"

// Codec wraps a tiktoken encoding behind the chunk.Codec interface and
// memoizes token-length lookups in a bounded LRU. The cache carries no
// correctness weight; a miss just recomputes.
type Codec struct {
	encodingName string
	tke          *tiktoken.Tiktoken
	lenCache     *lru.Cache[string, int]
}

// NewCodec resolves nameOrModel first as an encoding name, then as a model
// name, and falls back to cl100k_base when neither resolves.
func NewCodec(nameOrModel string, lenCacheSize int) (*Codec, error) {
	if nameOrModel == "" {
		nameOrModel = defaultEncoding
	}

	encodingName := nameOrModel
	tke, err := tiktoken.GetEncoding(nameOrModel)
	if err != nil {
		tke, err = tiktoken.EncodingForModel(nameOrModel)
		if err != nil {
			tke, err = tiktoken.GetEncoding(defaultEncoding)
			if err != nil {
				return nil, fmt.Errorf("token: get default encoding %q: %w", defaultEncoding, err)
			}
			encodingName = defaultEncoding
		}
	}

	if lenCacheSize <= 0 {
		lenCacheSize = 5000
	}
	cache, err := lru.New[string, int](lenCacheSize)
	if err != nil {
		return nil, fmt.Errorf("token: length cache: %w", err)
	}

	return &Codec{
		encodingName: encodingName,
		tke:          tke,
		lenCache:     cache,
	}, nil
}

// Encoding returns the name of the encoding actually in use.
func (c *Codec) Encoding() string {
	return c.encodingName
}

func (c *Codec) Encode(text string) ([]int, error) {
	if c.tke == nil {
		return nil, fmt.Errorf("token: encoder %q not initialized", c.encodingName)
	}
	return c.tke.Encode(text, nil, nil), nil
}

func (c *Codec) Decode(ids []int) (string, error) {
	if c.tke == nil {
		return "", fmt.Errorf("token: encoder %q not initialized", c.encodingName)
	}
	return c.tke.Decode(ids), nil
}

// Len returns the token count of text, degrading to 0 on encode failure.
func (c *Codec) Len(text string) int {
	if n, ok := c.lenCache.Get(text); ok {
		return n
	}
	ids, err := c.Encode(text)
	if err != nil {
		return 0
	}
	c.lenCache.Add(text, len(ids))
	return len(ids)
}
