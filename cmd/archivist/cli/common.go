package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/lorekeep/archivist/internal/dialogue"
	"github.com/lorekeep/archivist/internal/events"
	"github.com/lorekeep/archivist/internal/keyring"
	"github.com/lorekeep/archivist/internal/observe"
	"github.com/lorekeep/archivist/internal/policy"
	"github.com/lorekeep/archivist/internal/session"
	"github.com/lorekeep/archivist/internal/store"
	"github.com/lorekeep/archivist/internal/tools"
	"github.com/lorekeep/archivist/internal/turn"
)

// getStore opens the archive. ARCHIVIST_PG_DSN selects Postgres; otherwise a
// SQLite archive lives under ~/.archivist.
func getStore() store.Storage {
	if dsn := os.Getenv("ARCHIVIST_PG_DSN"); dsn != "" {
		storeLayer, err := store.NewPGStore(context.Background(), dsn)
		if err != nil {
			fmt.Printf("Failed to connect to Postgres: %v\n", err)
			os.Exit(1)
		}
		return storeLayer
	}

	home, _ := os.UserHomeDir()
	dir := filepath.Join(home, ".archivist")
	storeLayer, err := store.NewSQLiteStore(filepath.Join(dir, "archive.db"))
	if err != nil {
		fmt.Printf("Failed to init store: %v\n", err)
		os.Exit(1)
	}
	return storeLayer
}

// buildService constructs a dialogue provider, resolving API keys from the
// encrypted keyring.
func buildService(s store.Storage, provider, model string) (dialogue.Service, error) {
	switch provider {
	case "stub":
		return dialogue.NewStubService(), nil
	case "ollama":
		return dialogue.NewOllamaService(model)
	case "openai":
		apiKey, err := providerKey(s, "openai")
		if err != nil {
			return nil, err
		}
		baseURL, _ := s.GetConfig("openai.base_url")
		return dialogue.NewOpenAIService(apiKey, baseURL, model)
	case "gemini":
		apiKey, err := providerKey(s, "gemini")
		if err != nil {
			return nil, err
		}
		return dialogue.NewGeminiService(apiKey, model)
	case "anthropic":
		apiKey, err := providerKey(s, "anthropic")
		if err != nil {
			return nil, err
		}
		return dialogue.NewAnthropicService(apiKey, model)
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}

func providerKey(s store.Storage, provider string) (string, error) {
	kr, err := keyring.New(s)
	if err != nil {
		return "", err
	}
	key, err := kr.GetKey(provider)
	if err != nil {
		return "", fmt.Errorf("no API key for %s; run `archivist config key set %s <key>`: %w", provider, provider, err)
	}
	return key, nil
}

// getManager wires a session manager for one-shot commands. Logging stays
// quiet unless --verbose is set.
func getManager() (*session.Manager, store.Storage) {
	storeLayer := getStore()

	var out io.Writer = io.Discard
	if verbose {
		out = os.Stderr
	}
	obs := observe.New(out, verbose)

	svc, err := buildService(storeLayer, providerType, modelName)
	if err != nil {
		fmt.Printf("Failed to initialize dialogue provider: %v\n", err)
		os.Exit(1)
	}

	orch := tools.New(svc, storeLayer)
	proc := turn.New(svc, orch, obs)
	return session.New(storeLayer, proc, svc, policy.DefaultPolicy, obs, events.NewBus()), storeLayer
}
