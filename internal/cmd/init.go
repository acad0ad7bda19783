package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/adamancini/hatch/internal/install"
)

type initOptions struct {
	id         string
	version    string
	mainExe    string
	title      string
	channel    string
	force      bool
	launch     bool
	saveConfig string
}

func newInitCmd() *cobra.Command {
	var opts initOptions

	cmd := &cobra.Command{
		Use:   "init <app-dir>",
		Short: "Create an installation from an application directory",
		Long: `Init lays out a new installation under --root and copies the application
files from <app-dir> into its first version directory.

The application is described by <app-dir>/hatch.toml:

  id = "demo"
  version = "1.0.0"
  main_exe = "demo"
  channel = "linux"

or by --id, --app-version and --main-exe, which override the file.

Examples:
  hatch init ./build --root ~/.local/share/demo
  hatch init ./build --root /opt/demo --launch
  hatch init ./build --root /opt/demo --feed https://dl.example.com/demo \
    --save-config ~/.config/hatch/config.yaml`,
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{skipBootstrap: ""},
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			return runInit(a, args[0], opts)
		}),
	}

	cmd.Flags().StringVar(&opts.id, "id", "", "Application id")
	cmd.Flags().StringVar(&opts.version, "app-version", "", "Application version")
	cmd.Flags().StringVar(&opts.mainExe, "main-exe", "", "Main executable, relative to the version directory")
	cmd.Flags().StringVar(&opts.title, "title", "", "Display name")
	cmd.Flags().StringVar(&opts.channel, "app-channel", "", "Release channel recorded in the manifest")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Replace an existing installation")
	cmd.Flags().BoolVar(&opts.launch, "launch", false, "Start the application once installed")
	cmd.Flags().StringVar(&opts.saveConfig, "save-config", "", "Write the effective configuration to this path")

	return cmd
}

func runInit(a *app, srcDir string, opts initOptions) error {
	root := a.cfg.Install.Root
	if root == "" {
		return errors.New("init needs an installation root: pass --root or set install.root")
	}

	info, err := os.Stat(srcDir)
	if err != nil {
		return fmt.Errorf("application directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", srcDir)
	}

	manifest, err := initManifest(srcDir, opts)
	if err != nil {
		return err
	}

	replace := false
	if _, err := install.ReadPointer(root); err == nil {
		if !opts.force {
			return fmt.Errorf("%s already holds an installation, use --force to replace it", root)
		}
		replace = true
	}

	// A replaced installation is built next to the old one and only swapped
	// in once complete, since srcDir may live inside it.
	target := root
	if replace {
		target = filepath.Clean(root) + ".init-" + uuid.NewString()[:8]
	}
	loc, err := install.Initialize(target, manifest, srcDir)
	if err != nil {
		if replace {
			_ = os.RemoveAll(target)
		}
		return fmt.Errorf("failed to initialize installation: %w", err)
	}
	if replace {
		if loc, err = replaceRoot(root, target); err != nil {
			return err
		}
	}
	a.logger.Infof("installed %s %s in %s", manifest.ID, manifest.Version, loc.CurrentDir)

	if opts.saveConfig != "" {
		if err := saveConfig(a, opts.saveConfig, loc.RootDir); err != nil {
			return err
		}
		a.logger.Infof("wrote configuration to %s", opts.saveConfig)
	}

	if opts.launch {
		if err := a.launcher.Restart(loc.MainExePath(), nil, []string{install.EnvFirstRun + "=1"}); err != nil {
			return fmt.Errorf("failed to launch %s: %w", loc.MainExePath(), err)
		}
	}

	a.printLines(a.relay.DrainAll())
	a.out.Line("\nInitialized %s %s in %s", manifest.ID, manifest.Version, loc.RootDir)
	a.out.Line("\nNext steps:")
	a.out.Line("  1. Publish releases.<channel>.json and packages to a feed")
	a.out.Line("  2. Run 'hatch check --root %s --feed <url>'", loc.RootDir)
	return nil
}

// replaceRoot moves the installation built in staged over root. The old
// installation stays in place until the new one has been renamed in.
func replaceRoot(root, staged string) (*install.Locator, error) {
	old := filepath.Clean(root) + ".old-" + uuid.NewString()[:8]
	if err := os.Rename(root, old); err != nil {
		_ = os.RemoveAll(staged)
		return nil, fmt.Errorf("failed to move existing installation aside: %w", err)
	}
	if err := os.Rename(staged, root); err != nil {
		if rbErr := os.Rename(old, root); rbErr != nil {
			return nil, fmt.Errorf("failed to replace installation (%v) and restore %s: %w", err, root, rbErr)
		}
		_ = os.RemoveAll(staged)
		return nil, fmt.Errorf("failed to replace installation: %w", err)
	}
	if err := os.RemoveAll(old); err != nil {
		log.Warnf("failed to remove previous installation %s: %v", old, err)
	}
	return install.NewLocator(root)
}

// initManifest reads <srcDir>/hatch.toml when present and applies the
// command line overrides.
func initManifest(srcDir string, opts initOptions) (*install.Manifest, error) {
	manifest := &install.Manifest{}
	path := filepath.Join(srcDir, install.ManifestFile)
	if _, err := os.Stat(path); err == nil {
		m, err := install.ReadManifest(path)
		if err != nil {
			return nil, err
		}
		manifest = m
	}

	if opts.id != "" {
		manifest.ID = opts.id
	}
	if opts.version != "" {
		manifest.Version = opts.version
	}
	if opts.mainExe != "" {
		manifest.MainExe = opts.mainExe
	}
	if opts.title != "" {
		manifest.Title = opts.title
	}
	if opts.channel != "" {
		manifest.Channel = opts.channel
	}
	if manifest.Title == "" {
		manifest.Title = manifest.ID
	}

	if err := manifest.Validate(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(filepath.Join(srcDir, manifest.MainExe)); err != nil {
		return nil, fmt.Errorf("main executable %s not found in %s", manifest.MainExe, srcDir)
	}
	return manifest, nil
}

// saveConfig writes the effective configuration as YAML, with the install
// root pinned to root.
func saveConfig(a *app, path, root string) error {
	cfg := *a.cfg
	cfg.Install.Root = root

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write configuration: %w", err)
	}
	return nil
}
