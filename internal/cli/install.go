package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/xerrors"

	"github.com/u2takey/sqlkernel/internal/session"
)

// kernelSpec is the kernel.json Jupyter uses to launch the kernel.
type kernelSpec struct {
	Argv        []string `json:"argv"`
	DisplayName string   `json:"display_name"`
	Language    string   `json:"language"`
}

func newInstallCommand(a *app) *cobra.Command {
	var (
		user   bool
		prefix string
	)

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install the kernelspec so Jupyter can start this kernel",
		RunE: func(cmd *cobra.Command, args []string) error {
			exe, err := os.Executable()
			if err != nil {
				return xerrors.Errorf("could not locate executable: %w", err)
			}

			dir, err := kernelsDir(user, prefix)
			if err != nil {
				return err
			}

			path, err := writeKernelSpec(filepath.Join(dir, a.cfg.KernelName), a.newKernelSpec(exe))
			if err != nil {
				return err
			}

			a.logger.Info("kernelspec installed", zap.String("path", path))
			fmt.Fprintf(cmd.OutOrStdout(), "Installed kernelspec %s in %s\n", a.cfg.KernelName, filepath.Dir(path))
			return nil
		},
	}

	cmd.Flags().BoolVar(&user, "user", true, "install for the current user")
	cmd.Flags().StringVar(&prefix, "prefix", "", "install under PREFIX/share/jupyter/kernels instead")

	return cmd
}

func (a *app) newKernelSpec(exe string) kernelSpec {
	argv := []string{exe, "run", "--connection-file", "{connection_file}"}
	if a.cfgFile != "" {
		argv = append(argv, "--config", a.cfgFile)
	}
	if a.cfg.Database != session.MemoryDSN {
		argv = append(argv, "--database", a.cfg.Database)
	}
	return kernelSpec{
		Argv:        argv,
		DisplayName: a.cfg.DisplayName,
		Language:    "sql",
	}
}

func kernelsDir(user bool, prefix string) (string, error) {
	if prefix != "" {
		return filepath.Join(prefix, "share", "jupyter", "kernels"), nil
	}
	if !user {
		return filepath.Join("/usr", "local", "share", "jupyter", "kernels"), nil
	}

	if dataDir := os.Getenv("JUPYTER_DATA_DIR"); dataDir != "" {
		return filepath.Join(dataDir, "kernels"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", xerrors.Errorf("could not locate home directory: %w", err)
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Jupyter", "kernels"), nil
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "jupyter", "kernels"), nil
	default:
		return filepath.Join(home, ".local", "share", "jupyter", "kernels"), nil
	}
}

func writeKernelSpec(dir string, spec kernelSpec) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", xerrors.Errorf("could not create kernel directory: %w", err)
	}

	data, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, "kernel.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", xerrors.Errorf("could not write kernelspec: %w", err)
	}
	return path, nil
}
