package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spatiality/spatiality/internal/credential"
)

// runKey dispatches the key subcommands.
func runKey(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: spatiality key <set|show|clear> [args]")
	}

	a, err := setup()
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			slog.Warn("app close error", "error", closeErr)
		}
	}()

	switch args[0] {
	case "set":
		if len(args) != 2 {
			return errors.New("usage: spatiality key set <api-key>")
		}
		return runKeySet(a.Credentials, args[1])
	case "show":
		return runKeyShow(a.Credentials)
	case "clear":
		if err := a.Credentials.ClearKey(); err != nil {
			return err
		}
		fmt.Println("Stored key removed.")
		return nil
	default:
		return fmt.Errorf("unknown key subcommand: %s", args[0])
	}
}

func runKeySet(store *credential.Store, key string) error {
	if !credential.Valid(key) {
		return fmt.Errorf("key looks too short (need more than %d characters)", credential.MinKeyLength)
	}
	if err := store.SetKey(key); err != nil {
		return err
	}
	fmt.Println("Key stored.")
	return nil
}

func runKeyShow(store *credential.Store) error {
	key, err := store.Key()
	if err != nil {
		return err
	}
	if key == "" {
		fmt.Println("No key configured. Set one with: spatiality key set <api-key>")
		fmt.Println("The OPENAI_API_KEY environment variable also works.")
		return nil
	}
	status := "invalid (too short)"
	if credential.Valid(key) {
		status = "valid"
	}
	fmt.Printf("%s (%s)\n", credential.Mask(key), status)
	return nil
}
