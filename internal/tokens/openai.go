// Package tokens counts tokens for OpenAI chat and embedding models.
package tokens

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// Counter counts tokens with tiktoken encodings. Codecs are loaded once per
// encoding and shared across goroutines.
type Counter struct {
	codecs sync.Map // tokenizer.Encoding -> tokenizer.Codec
}

// NewCounter creates a token counter.
func NewCounter() *Counter {
	return &Counter{}
}

func (c *Counter) codecFor(model string) (tokenizer.Codec, error) {
	encoding := modelToEncoding(model)
	if cached, ok := c.codecs.Load(encoding); ok {
		return cached.(tokenizer.Codec), nil
	}

	codec, err := tokenizer.Get(encoding)
	if err != nil {
		return nil, fmt.Errorf("load %s encoding for %q: %w", encoding, model, err)
	}
	actual, _ := c.codecs.LoadOrStore(encoding, codec)
	return actual.(tokenizer.Codec), nil
}

// modelToEncoding picks the tiktoken encoding for a model or deployment name.
func modelToEncoding(model string) tokenizer.Encoding {
	model = strings.ToLower(model)

	switch {
	case strings.HasPrefix(model, "text-embedding"):
		return tokenizer.Cl100kBase
	case strings.HasPrefix(model, "gpt-4o"), strings.HasPrefix(model, "gpt-4.1"), strings.HasPrefix(model, "gpt-5"):
		return tokenizer.O200kBase
	case strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"), strings.HasPrefix(model, "o4"):
		return tokenizer.O200kBase
	case strings.HasPrefix(model, "gpt-4"), strings.HasPrefix(model, "gpt-3.5"):
		return tokenizer.Cl100kBase
	default:
		// Azure deployment names rarely reveal the model; newer encodings are the safer guess.
		return tokenizer.O200kBase
	}
}

// Count counts tokens in a plain text string.
func (c *Counter) Count(model, text string) (int, error) {
	codec, err := c.codecFor(model)
	if err != nil {
		return 0, err
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// CountMessages estimates the prompt size of a chat request: content plus
// the fixed per-message and priming overhead OpenAI documents.
func (c *Counter) CountMessages(model string, contents []string) (int, error) {
	codec, err := c.codecFor(model)
	if err != nil {
		return 0, err
	}

	const perMessage, priming = 4, 3
	total := priming
	for _, content := range contents {
		ids, _, err := codec.Encode(content)
		if err != nil {
			return 0, err
		}
		total += perMessage + len(ids)
	}
	return total, nil
}
