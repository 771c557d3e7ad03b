// Package config loads typed configuration structs from environment
// variables. Each unique struct type is parsed once and cached for the
// process lifetime, so components can load their own config independently
// without re-reading the environment.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	mu     sync.RWMutex
	cache  = make(map[string]any)
	envDot sync.Once
)

// Load populates v from environment variables based on `env:` field tags.
// A .env file, when present, is loaded once before the first parse; its
// absence is not an error. Missing variables marked required produce an
// error - callers at startup should treat that as fatal before serving
// traffic.
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}

	envDot.Do(func() {
		// The .env file is a local development convenience only.
		_ = godotenv.Load()
	})

	name := typeName[T]()

	mu.RLock()
	if cached, ok := cache[name]; ok {
		*v = cached.(T)
		mu.RUnlock()
		return nil
	}
	mu.RUnlock()

	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParseFailed, fmt.Errorf("config %s: %w", name, err))
	}

	mu.Lock()
	cache[name] = *v
	mu.Unlock()
	return nil
}

// MustLoad is Load that panics on error, for use in main where a missing
// required credential must halt the process.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(err)
	}
}

func typeName[T any]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}
