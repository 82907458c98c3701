package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/giwa-chain/giwa-walletd/app"
	"github.com/giwa-chain/giwa-walletd/common/logger"
	conf "github.com/giwa-chain/giwa-walletd/config"
	"github.com/giwa-chain/giwa-walletd/keystore"
	"github.com/giwa-chain/giwa-walletd/wallet"

	"github.com/spf13/cobra"
)

// Version info (Injected from Makefile)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func getPidFilePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./giwad.pid"
	}
	return filepath.Join(homeDir, ".giwa-walletd", "giwad.pid")
}

var (
	pidFile = getPidFilePath()
)

var configFile string

func main() {
	var rootCmd = &cobra.Command{
		Use:   "giwad",
		Short: "GIWA chain wallet daemon",
		Long:  `GIWA chain wallet daemon exposing the wallet lifecycle over a REST API and streaming security events over WebSocket.`,
		Run: func(cmd *cobra.Command, args []string) {
			runDaemon()
		},
	}

	// Register global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(walletCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println("Failed to execute command:", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("giwad %s (built %s)\n", Version, BuildTime)
		},
	}
}

func serveCmd() *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "serve",
		Short: "Daemon management commands",
		Long:  `Commands for managing the wallet daemon process.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		Run: func(cmd *cobra.Command, args []string) {
			runDaemonDetached(pidFile)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon",
		Run: func(cmd *cobra.Command, args []string) {
			stopDaemon(pidFile)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Run: func(cmd *cobra.Command, args []string) {
			showStatus(pidFile)
		},
	})

	return cmd
}

func runDaemon() {
	application, err := app.New(configFile)
	if err != nil {
		fmt.Println("Failed to initialize application:", err)
		os.Exit(1)
	}

	application.SigHandler()
	logger.Info("Wallet daemon start.")

	if err := application.StartAll(); err != nil {
		logger.Error("Failed to start services:", err)
		application.Terminate()
		os.Exit(1)
	}

	application.Wait()
	logger.Info("Wallet daemon terminated.")
}

// runDaemonDetached re-executes the binary in the background. The detached
// child needs GIWA_KEYSTORE_PASSPHRASE set since it has no terminal.
func runDaemonDetached(pidFilePath string) {
	if os.Getenv("GIWAD_DAEMON_CHILD") == "1" {
		runDaemon()
		return
	}

	if isRunning(pidFilePath) {
		fmt.Println("Daemon is already running")
		return
	}

	if os.Getenv("GIWA_KEYSTORE_PASSPHRASE") == "" {
		fmt.Println("Background mode has no terminal: set GIWA_KEYSTORE_PASSPHRASE first")
		os.Exit(1)
	}

	executable, err := os.Executable()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}

	cmd := exec.Command(executable, "serve", "start")
	cmd.Env = append(os.Environ(), "GIWAD_DAEMON_CHILD=1")

	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil

	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}

	if err := cmd.Start(); err != nil {
		fmt.Printf("Failed to start daemon: %v\n", err)
		os.Exit(1)
	}

	if err := writePidFile(pidFilePath, cmd.Process.Pid); err != nil {
		fmt.Printf("Failed to write PID file: %v\n", err)
		cmd.Process.Kill()
		os.Exit(1)
	}

	fmt.Printf("Daemon started with PID %d\n", cmd.Process.Pid)
	os.Exit(0)
}

func stopDaemon(pidFilePath string) {
	pid, err := readPidFile(pidFilePath)
	if err != nil {
		fmt.Println("Daemon is not running or PID file not found")
		return
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		fmt.Println("Process not found")
		removePidFile(pidFilePath)
		return
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		fmt.Printf("Failed to stop process: %v\n", err)
		return
	}

	fmt.Printf("Stopping daemon (PID: %d)...\n", pid)
	removePidFile(pidFilePath)
}

func showStatus(pidFilePath string) {
	fmt.Printf("PID file path: %s\n", pidFilePath)

	if isRunning(pidFilePath) {
		pid, _ := readPidFile(pidFilePath)
		fmt.Printf("Daemon is running (PID: %d)\n", pid)
	} else {
		fmt.Println("Daemon is not running")

		if _, err := os.Stat(pidFilePath); err == nil {
			fmt.Println("PID file exists but process is not running - cleaning up")
			removePidFile(pidFilePath)
		}
	}
}

func isRunning(pidFilePath string) bool {
	pid, err := readPidFile(pidFilePath)
	if err != nil {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	err = process.Signal(syscall.Signal(0))
	return err == nil
}

func readPidFile(pidFilePath string) (int, error) {
	data, err := os.ReadFile(pidFilePath)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, err
	}

	return pid, nil
}

func writePidFile(pidFilePath string, pid int) error {
	dir := filepath.Dir(pidFilePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(pidFilePath, []byte(strconv.Itoa(pid)), 0644)
}

func removePidFile(pidFilePath string) {
	os.Remove(pidFilePath)
}

// openManager builds a wallet manager for one-shot CLI commands, outside
// the daemon. Caller must Close the returned store.
func openManager() (*wallet.Manager, keystore.SecureStore, error) {
	cfg, err := conf.NewConfig(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	passphrase, err := keystore.PromptPassphrase()
	if err != nil {
		return nil, nil, err
	}

	auth := keystore.NewTermAuthenticator(passphrase)
	store, err := keystore.Open(cfg, passphrase, auth)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open keystore: %w", err)
	}

	manager := wallet.NewManager(wallet.ManagerConfig{
		Store:          store,
		Prefix:         cfg.Keystore.Prefix,
		AccountTimeout: cfg.AccountTimeout(),
	})

	return manager, store, nil
}

func walletCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Wallet management commands",
		Long:  `Commands for managing the wallet and its keys without running the daemon.`,
	}

	cmd.AddCommand(walletCreateCmd())
	cmd.AddCommand(walletRecoverCmd())
	cmd.AddCommand(walletImportCmd())
	cmd.AddCommand(walletStatusCmd())
	cmd.AddCommand(walletExportCmd())
	cmd.AddCommand(walletDeleteCmd())

	return cmd
}

func walletCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Create a new wallet with mnemonic",
		Run: func(cmd *cobra.Command, args []string) {
			manager, store, err := openManager()
			if err != nil {
				fmt.Println(err)
				return
			}
			defer store.Close()

			if manager.HasWallet() {
				fmt.Println("Wallet already exists.")
				fmt.Println("Use 'wallet recover' to overwrite from mnemonic or 'wallet delete' first.")
				return
			}

			account, mnemonic, err := manager.CreateWallet(keystore.Options{})
			if err != nil {
				fmt.Printf("Failed to create wallet: %v\n", err)
				return
			}

			fmt.Println("=== New Wallet Created ===")
			fmt.Println("")
			fmt.Println("IMPORTANT: Write down your mnemonic phrase and keep it safe!")
			fmt.Println("If you lose it, you will lose access to your wallet forever.")
			fmt.Println("")
			fmt.Printf("Mnemonic: %s\n", mnemonic)
			fmt.Println("")
			fmt.Println("=== Account ===")
			fmt.Printf("Address: %s\n", account.Address.Hex())
			fmt.Printf("Path: %s\n", account.Path)
		},
	}
}

func walletRecoverCmd() *cobra.Command {
	var mnemonic string

	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Recover wallet from mnemonic",
		Run: func(cmd *cobra.Command, args []string) {
			if mnemonic == "" {
				fmt.Println("Please provide a mnemonic phrase with --mnemonic flag")
				return
			}

			manager, store, err := openManager()
			if err != nil {
				fmt.Println(err)
				return
			}
			defer store.Close()

			account, err := manager.RecoverWallet(mnemonic, keystore.Options{})
			if err != nil {
				fmt.Printf("Failed to recover wallet: %v\n", err)
				return
			}

			fmt.Println("=== Wallet Recovered ===")
			fmt.Println("")
			fmt.Printf("Address: %s\n", account.Address.Hex())
			fmt.Printf("Path: %s\n", account.Path)
		},
	}

	cmd.Flags().StringVarP(&mnemonic, "mnemonic", "m", "", "Mnemonic phrase to recover from")
	return cmd
}

func walletImportCmd() *cobra.Command {
	var privateKey string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a raw private key",
		Run: func(cmd *cobra.Command, args []string) {
			if privateKey == "" {
				fmt.Println("Please provide a private key with --key flag")
				return
			}

			manager, store, err := openManager()
			if err != nil {
				fmt.Println(err)
				return
			}
			defer store.Close()

			account, err := manager.ImportPrivateKey(privateKey, keystore.Options{})
			if err != nil {
				fmt.Printf("Failed to import key: %v\n", err)
				return
			}

			fmt.Println("=== Private Key Imported ===")
			fmt.Println("")
			fmt.Printf("Address: %s\n", account.Address.Hex())
		},
	}

	cmd.Flags().StringVarP(&privateKey, "key", "k", "", "Hex private key (with or without 0x)")
	return cmd
}

func walletStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show wallet status",
		Run: func(cmd *cobra.Command, args []string) {
			manager, store, err := openManager()
			if err != nil {
				fmt.Println(err)
				return
			}
			defer store.Close()

			if !manager.HasWallet() {
				fmt.Println("No wallet exists. Use 'wallet create' to create one.")
				return
			}

			account, err := manager.LoadWallet(keystore.Options{})
			if err != nil {
				fmt.Printf("Failed to load wallet: %v\n", err)
				return
			}
			if account == nil {
				fmt.Println("No wallet exists. Use 'wallet create' to create one.")
				return
			}

			fmt.Println("=== Wallet ===")
			fmt.Printf("Address: %s\n", account.Address.Hex())
			if account.Path != "" {
				fmt.Printf("Path: %s\n", account.Path)
			}
		},
	}
}

func walletExportCmd() *cobra.Command {
	var showKey bool

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the mnemonic or private key",
		Run: func(cmd *cobra.Command, args []string) {
			manager, store, err := openManager()
			if err != nil {
				fmt.Println(err)
				return
			}
			defer store.Close()

			opts := keystore.Options{RequireAuth: true, Prompt: "Confirm export"}

			fmt.Println("WARNING: Never share exported secrets with anyone!")
			fmt.Println("")

			if showKey {
				keyHex, err := manager.ExportPrivateKey(opts)
				if err != nil {
					fmt.Printf("Failed to export private key: %v\n", err)
					return
				}
				if keyHex == "" {
					fmt.Println("No key material stored.")
					return
				}
				fmt.Printf("Private key: %s\n", keyHex)
				return
			}

			mnemonic, err := manager.ExportMnemonic(opts)
			if err != nil {
				fmt.Printf("Failed to export mnemonic: %v\n", err)
				return
			}
			if mnemonic == "" {
				fmt.Println("No mnemonic stored for this wallet (imported from raw key?). Try --key.")
				return
			}
			fmt.Printf("Mnemonic: %s\n", mnemonic)
		},
	}

	cmd.Flags().BoolVar(&showKey, "key", false, "Export the private key instead of the mnemonic")
	return cmd
}

func walletDeleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete the wallet and all stored secrets",
		Run: func(cmd *cobra.Command, args []string) {
			if !yes {
				fmt.Println("This permanently deletes the wallet. Re-run with --yes to confirm.")
				return
			}

			manager, store, err := openManager()
			if err != nil {
				fmt.Println(err)
				return
			}
			defer store.Close()

			if !manager.HasWallet() {
				fmt.Println("No wallet exists.")
				return
			}

			if err := manager.DeleteWallet(); err != nil {
				fmt.Printf("Failed to delete wallet: %v\n", err)
				return
			}

			fmt.Println("Wallet deleted.")
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deletion")
	return cmd
}
