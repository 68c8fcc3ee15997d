package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/wippyai/wasmbind/artifact"
)

var (
	keyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(10)
	valStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	noteStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
)

func newResolveCommand(app *App) *cobra.Command {
	var (
		verify string
		list   bool
	)
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Select the prebuilt runtime artifact for a platform",
		Long: `Resolve reads the artifact manifest and prints the archive URL, digest
and local include/lib directories for the target platform. Downloading is
left to the caller; --verify checks an already downloaded archive.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runResolve(cmd, app, verify, list)
		},
	}
	flags := cmd.Flags()
	flags.String("manifest", "artifacts.toml", "artifact manifest file")
	flags.String("cache-dir", "", "root directory of extracted artifacts")
	flags.StringVar(&verify, "verify", "", "check the SHA-256 digest of a downloaded archive")
	flags.BoolVar(&list, "list", false, "list the platforms in the manifest")
	return cmd
}

func runResolve(cmd *cobra.Command, app *App, verify string, list bool) error {
	cfg := app.Config
	out := cmd.OutOrStdout()

	m, err := artifact.Load(cfg.Manifest)
	if err != nil {
		return err
	}
	if list {
		for _, triple := range m.Platforms() {
			fmt.Fprintln(out, triple)
		}
		return nil
	}

	target, err := cfg.Target()
	if err != nil {
		return err
	}
	a, err := m.Resolve(target)
	if err != nil {
		return err
	}
	paths := a.Paths(cfg.CacheDir)

	row := func(k, v string) {
		fmt.Fprintln(out, keyStyle.Render(k)+valStyle.Render(v))
	}
	row("version", a.Version)
	row("platform", a.Platform.Triple())
	row("archive", a.ArchiveName())
	row("url", a.URL)
	row("sha256", a.SHA256)
	row("root", paths.Root)
	row("include", paths.Include)
	row("lib", paths.Lib)
	if cfg.GitHubToken != "" {
		fmt.Fprintln(out, noteStyle.Render("GitHub token configured for downloads"))
	}

	if verify != "" {
		if err := a.Verify(verify); err != nil {
			return err
		}
		fmt.Fprintln(out, okStyle.Render("✓ "+a.ArchiveName()+" verified"))
		app.Log.Info("archive verified", "file", verify)
	}
	return nil
}
