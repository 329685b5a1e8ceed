package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/revittco/gatewayobs/internal/secrets"
)

func cmdSecret(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: gatewayobs secret <keygen|encrypt|decrypt> [value|-]")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := cfg.keyPath()

	sub := args[0]
	rest := args[1:]

	switch sub {
	case "keygen":
		created, err := secrets.EnsureKeyFile(path)
		if err != nil {
			return err
		}
		enc, err := secrets.NewAgeEncryptor(path)
		if err != nil {
			return err
		}
		if created {
			fmt.Printf("Created age key %s\n", path)
		}
		fmt.Println(enc.Recipient())

	case "encrypt":
		if _, err := secrets.EnsureKeyFile(path); err != nil {
			return err
		}
		enc, err := secrets.NewAgeEncryptor(path)
		if err != nil {
			return err
		}
		val, err := secretInput(rest)
		if err != nil {
			return err
		}
		out, err := enc.Encrypt([]byte(val))
		if err != nil {
			return fmt.Errorf("encrypt: %w", err)
		}
		fmt.Print(string(out))

	case "decrypt":
		enc, err := secrets.NewAgeEncryptor(path)
		if err != nil {
			return err
		}
		val, err := secretInput(rest)
		if err != nil {
			return err
		}
		out, err := enc.Decrypt([]byte(val))
		if err != nil {
			return fmt.Errorf("decrypt: %w", err)
		}
		fmt.Println(string(out))

	default:
		return fmt.Errorf("unknown secret command: %s\nUsage: gatewayobs secret <keygen|encrypt|decrypt>", sub)
	}

	return nil
}

// secretInput returns the value argument, reading stdin for "-" so that
// credentials stay out of shell history.
func secretInput(rest []string) (string, error) {
	if len(rest) < 1 {
		return "", fmt.Errorf("missing value (use - to read stdin)")
	}
	if rest[0] != "-" {
		return rest[0], nil
	}
	b, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}
