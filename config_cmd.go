package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
)

const defaultConfig = `# speech playback configuration
speech:
  # master switch for speech playback
  enabled: true
  # advance the queue automatically when an item finishes
  autoPlay: true
  # fallback voice when nothing more specific applies
  defaultVoice: "en-US-neutral-1"
  # voice pinned for screen reader sessions (empty means no pin)
  screenReaderVoice: ""
  # give each session a distinct voice
  uniqueVoices: false
  # prefix spoken text with the session name
  announceSession: false
  # per-session voice assignments
  voices:
    sessions: {}
`

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Edit the voicedeck config file",
	Long:    "Edit the voicedeck config file. EDITOR determines which editor to use. If the config file doesn't exist, it will be created.",
	Example: "voicedeck config\nvoicedeck config --config path/to/config.yml",
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := resolvePaths(); err != nil {
			return err
		}
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("voicedeck", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
